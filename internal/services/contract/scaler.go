package contract

import (
	"fmt"
	"math"

	"InvSight/internal/domain/models"
)

// Scaler applies a frozen numeric transform and its exact inverse.
type Scaler struct {
	p models.ScaleParams
}

// NewScaler checks the parameters for kind. Degenerate spans (zero width or zero std)
// are replaced by 1 so the transform stays invertible.
func NewScaler(p models.ScaleParams) (Scaler, error) {
	if p.Kind == "" {
		p.Kind = models.TransformIdentity
	}
	switch p.Kind {
	case models.TransformIdentity, models.TransformLog1p, models.TransformLog:
	case models.TransformMinMax:
		if p.Max < p.Min {
			return Scaler{}, fmt.Errorf("minmax: max %g below min %g", p.Max, p.Min)
		}
	case models.TransformStandard:
		if p.Std < 0 {
			return Scaler{}, fmt.Errorf("standard: negative std %g", p.Std)
		}
	case models.TransformRobust:
		if p.Scale < 0 {
			return Scaler{}, fmt.Errorf("robust: negative scale %g", p.Scale)
		}
	default:
		return Scaler{}, fmt.Errorf("unsupported scale kind %q", p.Kind)
	}
	for _, f := range []float64{p.Min, p.Max, p.Mean, p.Std, p.Center, p.Scale} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Scaler{}, fmt.Errorf("%s: non-finite parameter", p.Kind)
		}
	}
	return Scaler{p: p}, nil
}

// Params returns the frozen parameters.
func (s Scaler) Params() models.ScaleParams { return s.p }

func (s Scaler) span() float64 {
	if d := s.p.Max - s.p.Min; d != 0 {
		return d
	}
	return 1
}

func nonZero(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// Transform maps a native value into model space.
func (s Scaler) Transform(x float64) float64 {
	switch s.p.Kind {
	case models.TransformMinMax:
		return (x - s.p.Min) / s.span()
	case models.TransformStandard:
		return (x - s.p.Mean) / nonZero(s.p.Std)
	case models.TransformRobust:
		return (x - s.p.Center) / nonZero(s.p.Scale)
	case models.TransformLog1p:
		return math.Log1p(x)
	case models.TransformLog:
		return math.Log(x)
	default:
		return x
	}
}

// Inverse maps a model-space value back to native units.
func (s Scaler) Inverse(y float64) float64 {
	switch s.p.Kind {
	case models.TransformMinMax:
		return y*s.span() + s.p.Min
	case models.TransformStandard:
		return y*nonZero(s.p.Std) + s.p.Mean
	case models.TransformRobust:
		return y*nonZero(s.p.Scale) + s.p.Center
	case models.TransformLog1p:
		return math.Expm1(y)
	case models.TransformLog:
		return math.Exp(y)
	default:
		return y
	}
}
