package forecast

import (
	"context"
	"fmt"
	"math"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/service"
	applogger "InvSight/pkg/logger"
)

// Inverter maps a model-space target back to native units.
type Inverter interface {
	InverseTarget(y float64) float64
}

// Engine rolls a single-step predictor forward over a fixed-length window.
type Engine struct {
	windowLength int
	maxHorizon   int
	l            *applogger.Logger
}

type Option func(*Engine)

// WithWindowLength sets the context length predictors were trained on.
func WithWindowLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.windowLength = n
		}
	}
}

// WithMaxHorizon caps the number of steps one call may request.
func WithMaxHorizon(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHorizon = n
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		windowLength: models.DefaultWindowLength,
		maxHorizon:   365,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetLogger(l *applogger.Logger) { e.l = l }

// WindowLength is the required window length.
func (e *Engine) WindowLength() int { return e.windowLength }

// Forecast returns horizon native-unit values. The caller's window is not modified.
//
// Each step feeds the full window to the model, records the scaled prediction and
// pushes a vector whose every component is that prediction, evicting the oldest entry.
// Any model failure fails the whole call.
func (e *Engine) Forecast(ctx context.Context, w *models.WindowState, model service.StepPredictor, inv Inverter, horizon int) ([]float64, error) {
	const op = "forecast"
	if horizon < 1 || horizon > e.maxHorizon {
		return nil, errs.InvalidRequest(op, "horizon %d outside [1, %d]", horizon, e.maxHorizon)
	}
	if w == nil || w.Len() != e.windowLength {
		have := 0
		if w != nil {
			have = w.Len()
		}
		return nil, errs.InsufficientHistory(op, have, e.windowLength)
	}

	work := w.Clone()
	width := work.Width()
	scaled := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.ModelInference(op, err)
		}
		y, err := model.PredictStep(ctx, work.Vectors())
		if err != nil {
			e.logFailure(w.Subject(), step, err)
			return nil, errs.ModelInference(op, err)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			err := fmt.Errorf("step %d produced non-finite value %v", step, y)
			e.logFailure(w.Subject(), step, err)
			return nil, errs.ModelInference(op, err)
		}
		scaled = append(scaled, y)

		next := make([]float64, width)
		for i := range next {
			next[i] = y
		}
		if err := work.Push(next); err != nil {
			return nil, errs.ModelInference(op, err)
		}
	}

	out := make([]float64, len(scaled))
	for i, y := range scaled {
		out[i] = inv.InverseTarget(y)
	}
	return out, nil
}

func (e *Engine) logFailure(subject string, step int, err error) {
	if e.l == nil {
		return
	}
	e.l.Error("forecast step failed",
		applogger.String("subject", subject),
		applogger.Int("step", step),
		applogger.Error(err))
}
