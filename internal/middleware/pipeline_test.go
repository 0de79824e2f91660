package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/models"
)

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}
func (m *nopMetrics) RecordLatency(string, float64)         {}
func (m *nopMetrics) RecordPrediction(string, string)       {}
func (m *nopMetrics) RecordEncodingFallback(string, string) {}
func (m *nopMetrics) RecordSnapshot(int, float64)           {}
func (m *nopMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type flakyProc struct {
	mu       sync.Mutex
	failures int
	got      []string
}

func (f *flakyProc) Process(_ context.Context, r *models.PredictionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("downstream unavailable")
	}
	f.got = append(f.got, r.RequestID)
	return nil
}

func (f *flakyProc) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func result(id string) *models.PredictionResult {
	return &models.PredictionResult{RequestID: id, Role: models.RoleAnomaly, Subject: "7"}
}

func TestPipelineRejectsInvalidResults(t *testing.T) {
	m := &nopMetrics{}
	p := NewResultPipeline(&flakyProc{}, m)
	assert.Error(t, p.Process(context.Background(), nil))
	assert.Error(t, p.Process(context.Background(), &models.PredictionResult{RequestID: "x", Role: "bogus"}))
	assert.Error(t, p.Process(context.Background(), &models.PredictionResult{
		RequestID: "x", Role: models.RolePricing, Pricing: &models.PricingOutcome{Price: -1},
	}))
	assert.Equal(t, 3, m.count("pipeline_validate"))
}

func TestPipelineRedeliversBufferedResults(t *testing.T) {
	proc := &flakyProc{failures: 1}
	p := NewResultPipeline(proc, &nopMetrics{}, WithBufferSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	err := p.Process(ctx, result("r1"))
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return len(proc.delivered()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"r1"}, proc.delivered())
}

func TestPipelineDropsWhenBufferFull(t *testing.T) {
	m := &nopMetrics{}
	p := NewResultPipeline(&flakyProc{failures: 10}, m, WithBufferSize(1))

	_ = p.Process(context.Background(), result("a"))
	_ = p.Process(context.Background(), result("b"))
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, 1, m.count("pipeline_buffer_drop"))
}

type memPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *memPublisher) Publish(_ context.Context, r *models.PredictionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, r.RequestID)
	return nil
}
func (p *memPublisher) Close() error { return nil }

type countingStream struct{ n int }

func (c *countingStream) Broadcast(*models.PredictionResult) { c.n++ }

func TestRouterThrottlesStreamPerSubject(t *testing.T) {
	pub := &memPublisher{}
	stream := &countingStream{}
	r := NewResultRouter(pub, WithBroadcaster(stream), WithMaxRPS(1))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Process(context.Background(), result(id)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, pub.ids)
	assert.Equal(t, 1, stream.n)
}
