package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	applogger "InvSight/pkg/logger"
)

// Proc is the minimal downstream the pipeline needs.
type Proc interface {
	Process(ctx context.Context, r *models.PredictionResult) error
}

// ResultPipeline sits between the orchestrator and the result sinks.
// It validates results, throttles the live stream per subject, and buffers
// results whose delivery failed so they are retried in the background.
type ResultPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	bufSize  int
	bufCh    chan *models.PredictionResult
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	l        *applogger.Logger
	maxDelay time.Duration
}

type PipelineOption func(*ResultPipeline)

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxBackoff caps the retry delay after failed deliveries.
func WithMaxBackoff(d time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if d > 0 {
			p.maxDelay = d
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *ResultPipeline) { p.l = l }
}

// NewResultPipeline creates a new pipeline.
func NewResultPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		maxDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.PredictionResult, p.bufSize)
	return p
}

// Start launches background redelivery of buffered results.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case r := <-p.bufCh:
				if err := p.proc.Process(ctx, r); err != nil {
					if backoff < p.maxDelay {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_redeliver")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- r:
					default:
						p.drop(r, err)
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops redelivery. Results still buffered are reported as dropped.
func (p *ResultPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh

	for {
		select {
		case r := <-p.bufCh:
			p.drop(r, fmt.Errorf("pipeline stopped"))
		default:
			return
		}
	}
}

// Pending returns the number of results waiting for redelivery.
func (p *ResultPipeline) Pending() int { return len(p.bufCh) }

// Process validates and forwards r downstream, buffering it on failure.
func (p *ResultPipeline) Process(ctx context.Context, r *models.PredictionResult) error {
	start := time.Now()
	if err := validateResult(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.proc.Process(ctx, r); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- r:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.drop(r, err)
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *ResultPipeline) drop(r *models.PredictionResult, err error) {
	p.metrics.RecordError("pipeline_buffer_drop")
	if p.l != nil {
		p.l.Error("prediction result dropped",
			applogger.String("request_id", r.RequestID),
			applogger.String("role", string(r.Role)),
			applogger.Error(err))
	}
}

func validateResult(r *models.PredictionResult) error {
	if r == nil {
		return fmt.Errorf("result nil")
	}
	if r.RequestID == "" {
		return fmt.Errorf("request id empty")
	}
	if !r.Role.Valid() {
		return fmt.Errorf("role %q invalid", r.Role)
	}
	if r.Pricing != nil && r.Pricing.Price < 0 {
		return fmt.Errorf("negative price")
	}
	return nil
}
