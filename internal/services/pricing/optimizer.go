package pricing

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/service"
)

// Inverter maps the model-space output back to native units (expm1 for log1p targets).
type Inverter interface {
	InverseTarget(y float64) float64
}

// Optimizer turns a pricing regressor output into a native-unit price.
type Optimizer struct {
	places int32
}

func NewOptimizer() *Optimizer { return &Optimizer{places: 2} }

// OptimizePrice predicts in log space, applies the inverse transform and checks the domain.
// A negative or non-finite price is a PricingDomainError, never clamped.
func (o *Optimizer) OptimizePrice(ctx context.Context, v models.AlignedVector, model service.Regressor, inv Inverter) (models.PricingOutcome, error) {
	const op = "optimize price"
	y, err := model.Predict(ctx, v.Values)
	if err != nil {
		return models.PricingOutcome{}, errs.ModelInference(op, err)
	}
	price := inv.InverseTarget(y)
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return models.PricingOutcome{}, errs.PricingDomain(op, price)
	}
	rounded := decimal.NewFromFloat(price).Round(o.places)
	return models.PricingOutcome{Price: price, Rounded: rounded.StringFixed(o.places)}, nil
}
