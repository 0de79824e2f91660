package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
)

type constant struct {
	y   float64
	err error
}

func (c constant) Predict(context.Context, []float64) (float64, error) { return c.y, c.err }

type expm1 struct{}

func (expm1) InverseTarget(y float64) float64 { return math.Expm1(y) }

// shifted simulates a contract whose inverse can leave the domain.
type shifted struct{ by float64 }

func (s shifted) InverseTarget(y float64) float64 { return y + s.by }

func TestOptimizePriceAppliesInverse(t *testing.T) {
	out, err := NewOptimizer().OptimizePrice(context.Background(), models.AlignedVector{}, constant{y: math.Log1p(129.999)}, expm1{})
	require.NoError(t, err)
	assert.InDelta(t, 129.999, out.Price, 1e-9)
	assert.Equal(t, "130.00", out.Rounded)
}

func TestOptimizePriceRejectsNegative(t *testing.T) {
	_, err := NewOptimizer().OptimizePrice(context.Background(), models.AlignedVector{}, constant{y: 1}, shifted{by: -5})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindPricingDomain))

	// expm1 of a very negative log output stays in (-1, 0)
	_, err = NewOptimizer().OptimizePrice(context.Background(), models.AlignedVector{}, constant{y: -3}, expm1{})
	assert.True(t, errs.Is(err, errs.KindPricingDomain))
}

func TestOptimizePriceModelFailure(t *testing.T) {
	_, err := NewOptimizer().OptimizePrice(context.Background(), models.AlignedVector{}, constant{err: errors.New("nan weights")}, expm1{})
	assert.True(t, errs.Is(err, errs.KindModelInference))
}

func TestOptimizePriceZeroIsAllowed(t *testing.T) {
	out, err := NewOptimizer().OptimizePrice(context.Background(), models.AlignedVector{}, constant{y: 0}, expm1{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Price)
	assert.Equal(t, "0.00", out.Rounded)
}
