package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
)

// Broadcaster fans results out to live subscribers.
type Broadcaster interface {
	Broadcast(r *models.PredictionResult)
}

// ResultRouter delivers one result to every configured sink: the publisher,
// the predictions collection when persistence is on, and the live stream.
// The live stream is throttled per subject.
type ResultRouter struct {
	pub     domrepo.ResultPublisher
	store   domrepo.EntityStore
	stream  Broadcaster
	maxRPS  int
	mu      sync.Mutex
	lastOut map[string]time.Time
}

type RouterOption func(*ResultRouter)

// WithPersistence writes each result into the predictions collection.
func WithPersistence(store domrepo.EntityStore) RouterOption {
	return func(r *ResultRouter) { r.store = store }
}

// WithBroadcaster attaches the live stream.
func WithBroadcaster(b Broadcaster) RouterOption {
	return func(r *ResultRouter) { r.stream = b }
}

// WithMaxRPS sets the max streamed results per second per subject.
func WithMaxRPS(n int) RouterOption {
	return func(r *ResultRouter) {
		if n > 0 {
			r.maxRPS = n
		}
	}
}

func NewResultRouter(pub domrepo.ResultPublisher, opts ...RouterOption) *ResultRouter {
	r := &ResultRouter{pub: pub, maxRPS: 20, lastOut: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ResultRouter) Process(ctx context.Context, res *models.PredictionResult) error {
	var errs []error
	if r.pub != nil {
		if err := r.pub.Publish(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.Write(ctx, domrepo.CollectionPredictions, []models.Row{res.ToRow()}); err != nil {
			errs = append(errs, err)
		}
	}
	if r.stream != nil && r.allow(res.Subject, time.Now()) {
		r.stream.Broadcast(res)
	}
	return errors.Join(errs...)
}

func (r *ResultRouter) allow(subject string, now time.Time) bool {
	if r.maxRPS <= 0 || subject == "" {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.lastOut[subject]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(r.maxRPS) {
		return false
	}
	r.lastOut[subject] = now
	return true
}
