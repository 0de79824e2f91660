package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/registry"
	svccache "InvSight/internal/service/cache"
	pkgcache "InvSight/pkg/cache"
)

type captureSink struct {
	mu  sync.Mutex
	got []*models.PredictionResult
	err error
}

func (s *captureSink) Process(_ context.Context, r *models.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	return s.err
}

func TestPredictDemandRollsForward(t *testing.T) {
	f := newFixture(t)
	sink := &captureSink{}
	o := f.orchestrator(WithResultSink(sink))

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:    models.RoleDemand,
		Subject: "1",
		Horizon: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Demand)
	require.Len(t, res.Demand.Values, 3)
	for _, v := range res.Demand.Values {
		assert.InDelta(t, 10, v, 1e-9)
	}
	assert.Equal(t, []string{"2024-01-11", "2024-01-12", "2024-01-13"}, res.Demand.Dates)
	assert.Equal(t, "1", res.Subject)
	assert.Equal(t, "demand-last", res.ArtifactID)
	assert.Equal(t, "v1", res.ContractVersion)
	assert.Equal(t, f.snaps.Current().Version, res.SnapshotVersion)
	assert.NotEmpty(t, res.RequestID)

	require.Len(t, sink.got, 1)
	assert.Same(t, res, sink.got[0])
	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int { return m.predictions["demand/ok"] }))
}

func TestPredictDemandDefaultsHorizon(t *testing.T) {
	o := newFixture(t).orchestrator()
	res, err := o.Predict(context.Background(), models.PredictionRequest{Role: models.RoleDemand, Subject: "1"})
	require.NoError(t, err)
	assert.Len(t, res.Demand.Values, DefaultHorizon)
}

func TestPredictDemandShortHistory(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	_, err := o.Predict(context.Background(), models.PredictionRequest{Role: models.RoleDemand, Subject: "2", Horizon: 1})
	assert.True(t, errs.Is(err, errs.KindInsufficientHistory))

	_, err = o.Predict(context.Background(), models.PredictionRequest{Role: models.RoleDemand, Horizon: 1})
	assert.True(t, errs.Is(err, errs.KindFeatureContractViolation))

	_, err = o.Predict(context.Background(), models.PredictionRequest{Role: models.RoleDemand, Subject: "1", Horizon: -1})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))

	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int {
		return m.predictions["demand/"+string(errs.KindInsufficientHistory)]
	}))
}

func TestPredictDemandAccumulatesObservations(t *testing.T) {
	f := newFixture(t)
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	o := f.orchestrator(WithWindowCache(svccache.NewWindowCache(mc)))
	ctx := context.Background()

	observe := func(qty float64, d int) (*models.PredictionResult, error) {
		return o.Predict(ctx, models.PredictionRequest{
			Role:    models.RoleDemand,
			Subject: "2",
			Horizon: 2,
			Features: models.Row{
				"quantity":         models.Num(qty),
				"transaction_date": models.Time(day(d)),
			},
		})
	}

	_, err := observe(20, 4)
	require.True(t, errs.Is(err, errs.KindInsufficientHistory), "four observations are not a full window")

	res, err := observe(25, 5)
	require.NoError(t, err)
	for _, v := range res.Demand.Values {
		assert.InDelta(t, 25, v, 1e-9)
	}
	assert.Equal(t, []string{"2024-01-06", "2024-01-07"}, res.Demand.Dates)

	// a new snapshot version starts a fresh window
	_, err = f.snaps.Refresh(ctx)
	require.NoError(t, err)
	_, err = o.Predict(ctx, models.PredictionRequest{Role: models.RoleDemand, Subject: "2", Horizon: 1})
	assert.True(t, errs.Is(err, errs.KindInsufficientHistory))
}

func TestPredictDemandObservationSeesHistory(t *testing.T) {
	f := newFixture(t)
	src := mapSource{
		"manifest.yaml": `
version: test
artifacts:
  - id: demand-rolling
    role: demand
    contract: contracts/demand.yaml
    predictor: {kind: last_value, index: 0}
`,
		"contracts/demand.yaml": `
name: demand
version: v3
subject: product_id
features:
  - {name: quantity_roll7_mean, type: numeric}
  - {name: quantity, type: numeric}
  - {name: prev_quantity, type: numeric}
target:
  name: quantity
`,
	}
	reg, err := registry.Load(context.Background(), src, "manifest.yaml", nil)
	require.NoError(t, err)
	f.reg = reg
	o := f.orchestrator()

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:    models.RoleDemand,
		Subject: "1",
		Horizon: 2,
		Features: models.Row{
			"quantity":         models.Num(11),
			"transaction_date": models.Time(day(11)),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Demand.Values, 2)
	// mean of quantities 5..11, the trailing week including the new sale
	for _, v := range res.Demand.Values {
		assert.InDelta(t, 8, v, 1e-9)
	}
}

func TestPredictPricing(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:     models.RolePricing,
		Features: models.Row{"quantity": models.Num(2), "category": models.Str("food")},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Pricing)
	assert.InDelta(t, math.Expm1(3.2), res.Pricing.Price, 1e-9)
	assert.Equal(t, "23.53", res.Pricing.Rounded)
	assert.Empty(t, res.Fallbacks)
	assert.Equal(t, "v2", res.ContractVersion)
}

func TestPredictPricingUnseenCategory(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:     models.RolePricing,
		Features: models.Row{"quantity": models.Num(2), "category": models.Str("books")},
	})
	require.NoError(t, err)
	require.Len(t, res.Fallbacks, 1)
	assert.Equal(t, "category", res.Fallbacks[0].Feature)
	assert.Equal(t, "books", res.Fallbacks[0].Category)
	assert.InDelta(t, math.Expm1(3.0), res.Pricing.Price, 1e-9)
	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int { return m.fallbacks }))
}

func TestPredictAnomaly(t *testing.T) {
	o := newFixture(t).orchestrator()

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:     models.RoleAnomaly,
		Features: models.Row{"quantity": models.Num(30)},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Anomaly)
	assert.True(t, res.Anomaly.Flagged)
	assert.Equal(t, 30.0, res.Anomaly.Score)

	res, err = o.Predict(context.Background(), models.PredictionRequest{
		Role:     models.RoleAnomaly,
		Features: models.Row{"quantity": models.Num(3)},
	})
	require.NoError(t, err)
	assert.False(t, res.Anomaly.Flagged)
}

func TestPredictEnrichesFromSnapshot(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	// category comes from the products table through the join
	res, err := o.Predict(context.Background(), models.PredictionRequest{
		Role:     models.RolePricing,
		Features: models.Row{"quantity": models.Num(2), "product_id": models.Num(2)},
	})
	require.NoError(t, err)
	assert.InDelta(t, math.Expm1(3.4), res.Pricing.Price, 1e-9)
	assert.NotEmpty(t, res.SnapshotVersion)
}

func TestPredictUnknownRole(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	_, err := o.Predict(context.Background(), models.PredictionRequest{Role: "weather"})
	assert.True(t, errs.Is(err, errs.KindInvalidRequest))
	assert.Equal(t, 1, f.metrics.count(func(m *recMetrics) int { return m.errors[string(errs.KindInvalidRequest)] }))
}

func TestPredictSinkFailureDoesNotFailRequest(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	o := newFixture(t).orchestrator(WithResultSink(sink), WithClock(func() time.Time { return day(20) }))

	res, err := o.Predict(context.Background(), models.PredictionRequest{
		RequestID: "req-1",
		Role:      models.RoleAnomaly,
		Features:  models.Row{"quantity": models.Num(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, day(20), res.CreatedAt)
	assert.Len(t, sink.got, 1)
}
