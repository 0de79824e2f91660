package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	"InvSight/internal/repository"
	pkgkafka "InvSight/pkg/kafka"
	applogger "InvSight/pkg/logger"
)

// Entity event operations. An empty op is an insert.
const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpUpsert  = "upsert"
	OpRefresh = "refresh"
)

// EntityEvent announces a change in one entity collection. Rows, when present,
// are stored according to Op before the snapshot is refreshed: inserts must
// carry new primary keys, updates and upserts merge on the primary key.
type EntityEvent struct {
	Collection string       `json:"collection"`
	Op         string       `json:"op"`
	Rows       []models.Row `json:"rows,omitempty"`
	Timestamp  int64        `json:"ts"`
}

// Refresher rebuilds the snapshot, directly or through the job queue.
type Refresher interface {
	RequestRefresh(ctx context.Context, reason string) error
}

// KafkaEntityEventsHandler consumes entity change events and triggers a
// snapshot refresh once per debounce interval.
type KafkaEntityEventsHandler struct {
	topic    string
	store    domrepo.EntityStore
	refresh  Refresher
	metrics  domrepo.Metrics
	debounce time.Duration
	pending  chan struct{}
	l        *applogger.Logger
}

func NewKafkaEntityEventsHandler(topic string, store domrepo.EntityStore, refresh Refresher, metrics domrepo.Metrics) *KafkaEntityEventsHandler {
	return &KafkaEntityEventsHandler{
		topic:    topic,
		store:    store,
		refresh:  refresh,
		metrics:  metrics,
		debounce: 2 * time.Second,
		pending:  make(chan struct{}, 1),
	}
}

func (h *KafkaEntityEventsHandler) SetLogger(l *applogger.Logger) { h.l = l }

// SetDebounce sets how long refresh requests are coalesced.
func (h *KafkaEntityEventsHandler) SetDebounce(d time.Duration) {
	if d > 0 {
		h.debounce = d
	}
}

func (h *KafkaEntityEventsHandler) Topic() string { return h.topic }

func (h *KafkaEntityEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev EntityEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if !domrepo.IsValidCollection(ev.Collection) {
		h.metrics.RecordError("consumer_invalid_event")
		return fmt.Errorf("entity event: invalid collection %q", ev.Collection)
	}
	if ev.Timestamp > 1e11 { // ms
		ev.Timestamp /= 1000
	}
	if ev.Timestamp > 0 {
		h.metrics.RecordLatency("entity_event_e2e_seconds", time.Since(time.Unix(ev.Timestamp, 0)).Seconds())
	}

	if len(ev.Rows) > 0 {
		start := time.Now()
		err := h.apply(ctx, ev)
		h.metrics.RecordLatency("entity_event_write_seconds", time.Since(start).Seconds())
		if err != nil {
			h.metrics.RecordError("consumer_store")
			return err
		}
	}

	if h.l != nil {
		h.l.Debug("entity event received",
			applogger.String("collection", ev.Collection),
			applogger.String("op", ev.Op),
			applogger.Int("rows", len(ev.Rows)),
			applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)))
	}

	// one refresh request per debounce window; later events ride along
	select {
	case h.pending <- struct{}{}:
		go h.flush(ev.Collection)
	default:
	}
	return nil
}

func (h *KafkaEntityEventsHandler) apply(ctx context.Context, ev EntityEvent) error {
	const op = "entity_event.apply"
	switch strings.ToLower(ev.Op) {
	case "", OpInsert:
		cur, err := h.store.Fetch(ctx, ev.Collection)
		if err != nil && !errs.Is(err, errs.KindSchemaMismatch) {
			return err
		}
		var existing []models.Row
		pk := domrepo.PrimaryKeys[ev.Collection]
		if cur != nil {
			existing = cur.Rows
			if cur.PrimaryKey != "" {
				pk = cur.PrimaryKey
			}
		}
		if err := repository.CheckNewKeys(op, ev.Collection, pk, existing, ev.Rows); err != nil {
			return err
		}
		return h.store.Write(ctx, ev.Collection, ev.Rows)
	case OpUpdate, OpUpsert:
		return h.store.Upsert(ctx, ev.Collection, ev.Rows)
	case OpRefresh:
		return nil
	default:
		return errs.InvalidRequest(op, "unsupported op %q for collection %s", ev.Op, ev.Collection)
	}
}

func (h *KafkaEntityEventsHandler) flush(collection string) {
	time.Sleep(h.debounce)
	<-h.pending
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := h.refresh.RequestRefresh(ctx, "entity_event:"+collection); err != nil {
		h.metrics.RecordError("entity_event_refresh")
		if h.l != nil {
			h.l.Error("snapshot refresh after entity event failed",
				applogger.String("collection", collection),
				applogger.Error(err))
		}
	}
}

var _ pkgkafka.MessageHandler = (*KafkaEntityEventsHandler)(nil)
