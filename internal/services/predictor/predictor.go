package predictor

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Spec is the serialized predictor description found in an artifact manifest.
type Spec struct {
	Kind      string    `yaml:"kind" json:"kind"`
	Index     *int      `yaml:"index,omitempty" json:"index,omitempty"`
	Periods   int       `yaml:"periods,omitempty" json:"periods,omitempty"`
	Weights   []float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
	Intercept float64   `yaml:"intercept,omitempty" json:"intercept,omitempty"`
	Threshold float64   `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

const (
	KindLastValue     = "last_value"
	KindMovingAverage = "moving_average"
	KindLinearAR      = "linear_ar"
	KindLinear        = "linear"
	KindLogistic      = "logistic"
	KindThreshold     = "threshold"
)

// New builds the predictor for spec. The concrete type implements one of
// service.StepPredictor, service.Regressor or service.Classifier.
func New(spec Spec) (interface{}, error) {
	idx := -1
	if spec.Index != nil {
		idx = *spec.Index
	}
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindLastValue:
		return &LastValue{Index: idx}, nil
	case KindMovingAverage:
		if spec.Periods < 1 {
			return nil, fmt.Errorf("moving_average: periods must be >= 1")
		}
		return &MovingAverage{Index: idx, Periods: spec.Periods}, nil
	case KindLinearAR:
		if len(spec.Weights) == 0 {
			return nil, fmt.Errorf("linear_ar: weights required")
		}
		return &LinearAR{Index: idx, Weights: append([]float64(nil), spec.Weights...), Intercept: spec.Intercept}, nil
	case KindLinear:
		if len(spec.Weights) == 0 {
			return nil, fmt.Errorf("linear: weights required")
		}
		return &Linear{Weights: append([]float64(nil), spec.Weights...), Intercept: spec.Intercept}, nil
	case KindLogistic:
		if len(spec.Weights) == 0 {
			return nil, fmt.Errorf("logistic: weights required")
		}
		th := spec.Threshold
		if th == 0 {
			th = 0.5
		}
		return &Logistic{Weights: append([]float64(nil), spec.Weights...), Intercept: spec.Intercept, Threshold: th}, nil
	case KindThreshold:
		if idx < 0 {
			return nil, fmt.Errorf("threshold: index required")
		}
		return &Threshold{Index: idx, Cutoff: spec.Threshold}, nil
	default:
		return nil, fmt.Errorf("unsupported predictor kind %q", spec.Kind)
	}
}

func component(vec []float64, idx int) (float64, error) {
	if idx < 0 {
		idx = len(vec) - 1
	}
	if idx < 0 || idx >= len(vec) {
		return 0, fmt.Errorf("component %d out of range for width %d", idx, len(vec))
	}
	return vec[idx], nil
}

func dot(w, x []float64) (float64, error) {
	if len(w) != len(x) {
		return 0, fmt.Errorf("weights have %d entries, vector has %d", len(w), len(x))
	}
	s := 0.0
	for i := range w {
		s += w[i] * x[i]
	}
	return s, nil
}

// LastValue repeats one component of the newest vector. Index < 0 selects the last component.
type LastValue struct {
	Index int
}

func (p *LastValue) PredictStep(_ context.Context, window [][]float64) (float64, error) {
	if len(window) == 0 {
		return 0, fmt.Errorf("last_value: empty window")
	}
	return component(window[len(window)-1], p.Index)
}

// MovingAverage averages one component over the newest Periods vectors.
type MovingAverage struct {
	Index   int
	Periods int
}

func (p *MovingAverage) PredictStep(_ context.Context, window [][]float64) (float64, error) {
	n := p.Periods
	if n > len(window) {
		n = len(window)
	}
	if n == 0 {
		return 0, fmt.Errorf("moving_average: empty window")
	}
	sum := 0.0
	for _, vec := range window[len(window)-n:] {
		v, err := component(vec, p.Index)
		if err != nil {
			return 0, fmt.Errorf("moving_average: %w", err)
		}
		sum += v
	}
	return sum / float64(n), nil
}

// LinearAR is an autoregression on one component: Weights[0] applies to the newest vector.
type LinearAR struct {
	Index     int
	Weights   []float64
	Intercept float64
}

func (p *LinearAR) PredictStep(_ context.Context, window [][]float64) (float64, error) {
	if len(window) < len(p.Weights) {
		return 0, fmt.Errorf("linear_ar: window %d shorter than order %d", len(window), len(p.Weights))
	}
	y := p.Intercept
	for lag, w := range p.Weights {
		v, err := component(window[len(window)-1-lag], p.Index)
		if err != nil {
			return 0, fmt.Errorf("linear_ar: %w", err)
		}
		y += w * v
	}
	return y, nil
}

// Linear is w.x + b.
type Linear struct {
	Weights   []float64
	Intercept float64
}

func (p *Linear) Predict(_ context.Context, x []float64) (float64, error) {
	s, err := dot(p.Weights, x)
	if err != nil {
		return 0, fmt.Errorf("linear: %w", err)
	}
	return s + p.Intercept, nil
}

// Logistic scores sigmoid(w.x + b) and flags scores at or above Threshold.
type Logistic struct {
	Weights   []float64
	Intercept float64
	Threshold float64
}

func (p *Logistic) Score(_ context.Context, x []float64) (float64, bool, error) {
	s, err := dot(p.Weights, x)
	if err != nil {
		return 0, false, fmt.Errorf("logistic: %w", err)
	}
	score := 1 / (1 + math.Exp(-(s + p.Intercept)))
	return score, score >= p.Threshold, nil
}

// Threshold flags vectors whose Index component is strictly above Cutoff. The score is the component.
type Threshold struct {
	Index  int
	Cutoff float64
}

func (p *Threshold) Score(_ context.Context, x []float64) (float64, bool, error) {
	v, err := component(x, p.Index)
	if err != nil {
		return 0, false, fmt.Errorf("threshold: %w", err)
	}
	return v, v > p.Cutoff, nil
}
