package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/pkg/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	payloads []interface{}
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msgType)
	q.payloads = append(q.payloads, payload)
	return "job-1", nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (queue.Status, error) {
	if id == "job-1" {
		return queue.StatusDone, nil
	}
	return queue.StatusUnknown, nil
}

func TestDispatcherInline(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.snaps, newExport(f))
	assert.False(t, d.Queued())

	id, snap, err := d.SubmitRefresh(context.Background(), "manual")
	require.NoError(t, err)
	assert.Empty(t, id)
	require.NotNil(t, snap)
	assert.Same(t, snap, f.snaps.Current())

	id, res, err := d.SubmitExport(context.Background(), models.RolePricing)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 13, res.Rows)

	_, err = d.Status(context.Background(), "job-1")
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
}

func TestDispatcherQueued(t *testing.T) {
	f := newFixture(t)
	q := &fakeQueue{}
	d := NewDispatcher(f.snaps, newExport(f), WithQueue(q, q))
	assert.True(t, d.Queued())

	id, snap, err := d.SubmitRefresh(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Nil(t, snap)
	assert.Nil(t, f.snaps.Current())

	_, _, err = d.SubmitExport(context.Background(), models.RoleAnomaly)
	require.NoError(t, err)
	assert.Equal(t, []string{JobSnapshotRefresh, JobTrainingExport}, q.enqueued)
	assert.Equal(t, ExportPayload{Role: models.RoleAnomaly}, q.payloads[1])

	_, _, err = d.SubmitExport(context.Background(), "weather")
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))

	st, err := d.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, st)
}

func TestJobsHandlePayloads(t *testing.T) {
	f := newFixture(t)
	refresh := NewSnapshotRefreshJob(f.snaps)
	assert.Equal(t, JobSnapshotRefresh, refresh.Type())
	require.NoError(t, refresh.Handle(context.Background(), json.RawMessage(`{"reason":"cron"}`)))
	assert.NotNil(t, f.snaps.Current())

	export := NewTrainingExportJob(newExport(f))
	assert.Equal(t, JobTrainingExport, export.Type())
	require.NoError(t, export.Handle(context.Background(), json.RawMessage(`{"role":"demand"}`)))
	tbl, err := f.store.Fetch(context.Background(), "training_demand")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 11)

	assert.Error(t, export.Handle(context.Background(), json.RawMessage(`{"role":`)))
}

type countingRefresher struct {
	calls   atomic.Int32
	reasons chan string
}

func (r *countingRefresher) RequestRefresh(_ context.Context, reason string) error {
	r.calls.Add(1)
	r.reasons <- reason
	return nil
}

func TestEntityEventsAppendAndRefreshOnce(t *testing.T) {
	f := newFixture(t)
	ref := &countingRefresher{reasons: make(chan string, 4)}
	h := NewKafkaEntityEventsHandler("entity-events", f.store, ref, f.metrics)
	h.SetDebounce(30 * time.Millisecond)
	assert.Equal(t, "entity-events", h.Topic())

	ev := `{"collection":"transactions","op":"insert","rows":[{"transaction_id":99,"product_id":2,"quantity":7,"transaction_date":"2024-01-04"}],"ts":1704067200000}`
	require.NoError(t, h.Handle(context.Background(), []byte(ev)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"collection":"transactions","op":"update"}`)))

	select {
	case reason := <-ref.reasons:
		assert.Equal(t, "entity_event:transactions", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not requested")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), ref.calls.Load())

	tbl, err := f.store.Fetch(context.Background(), "transactions")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 14)
}

func TestEntityEventsUpdateKeepsKeysUnique(t *testing.T) {
	f := newFixture(t)
	ref := &countingRefresher{reasons: make(chan string, 4)}
	h := NewKafkaEntityEventsHandler("entity-events", f.store, ref, f.metrics)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, []byte(`{"collection":"products","op":"update","rows":[{"product_id":1,"stock_level":5}]}`)))

	tbl, err := f.store.Fetch(ctx, "products")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	snap, err := f.snaps.Refresh(ctx)
	require.NoError(t, err)
	rows := snap.SubjectRows("1")
	require.NotEmpty(t, rows)
	assert.Equal(t, models.Num(5), rows[0]["stock_level"])
	assert.Equal(t, models.Str("food"), rows[0]["category"])

	// an insert reusing a key is refused so the event can be dead-lettered
	err = h.Handle(ctx, []byte(`{"collection":"products","op":"insert","rows":[{"product_id":2,"stock_level":1}]}`))
	assert.True(t, errs.Is(err, errs.KindSchemaMismatch))
	err = h.Handle(ctx, []byte(`{"collection":"products","op":"delete","rows":[{"product_id":2}]}`))
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
	assert.Equal(t, 2, f.metrics.count(func(m *recMetrics) int { return m.errors["consumer_store"] }))

	_, err = f.snaps.Refresh(ctx)
	require.NoError(t, err)
}

func TestEntityEventsRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ref := &countingRefresher{reasons: make(chan string, 1)}
	h := NewKafkaEntityEventsHandler("entity-events", f.store, ref, f.metrics)

	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"collection":"drop table"}`)))
	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int { return m.errors["consumer_unmarshal"] }))
	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int { return m.errors["consumer_invalid_event"] }))
	assert.Equal(t, int32(0), ref.calls.Load())
}
