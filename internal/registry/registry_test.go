package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
)

type mapSource map[string]string

func (m mapSource) ReadObject(_ context.Context, name string) ([]byte, error) {
	s, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return []byte(s), nil
}

func (m mapSource) Location() string { return "mem://artifacts" }

const demandContract = `
name: demand
version: v1
subject: product_id
features:
  - {name: quantity, type: numeric, transform: minmax, scale: {kind: minmax, min: 0, max: 50}}
  - {name: day_of_week, type: numeric}
target:
  name: quantity
  scale: {kind: minmax, min: 0, max: 50}
`

const pricingContract = `
name: pricing
version: v2
features:
  - {name: quantity, type: numeric}
  - {name: category, type: categorical, transform: label, categories: [food, toys]}
target:
  name: total_price
  scale: {kind: log1p}
`

const manifest = `
version: "2024-06"
artifacts:
  - id: demand-ma
    role: demand
    contract: contracts/demand.yaml
    contract_version: v1
    predictor: {kind: moving_average, index: 0, periods: 7}
  - id: demand-last
    role: demand
    default: true
    contract: contracts/demand.yaml
    predictor: {kind: last_value, index: 0}
  - id: pricing-linear
    role: pricing
    contract: contracts/pricing.yaml
    predictor: {kind: linear, weights: [0.1, 0.2], intercept: 3}
`

func source() mapSource {
	return mapSource{
		"manifest.yaml":          manifest,
		"contracts/demand.yaml":  demandContract,
		"contracts/pricing.yaml": pricingContract,
	}
}

func TestLoadRegistry(t *testing.T) {
	r, err := Load(context.Background(), source(), "manifest.yaml", nil)
	require.NoError(t, err)

	a, err := r.ForRole(models.RoleDemand)
	require.NoError(t, err)
	assert.Equal(t, "demand-last", a.ID())
	assert.Equal(t, "v1", a.Contract().Version())
	assert.Equal(t, "product_id", a.Contract().Subject())

	_, err = r.ForRole(models.RoleAnomaly)
	assert.True(t, errs.Is(err, errs.KindArtifactUnavailable))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "demand-ma", list[0].ID)
	assert.False(t, list[0].Default)
	assert.True(t, list[1].Default)
	assert.Equal(t, []string{"quantity", "day_of_week"}, list[0].Features)
	assert.Equal(t, []models.Role{models.RoleDemand, models.RolePricing}, r.Roles())
	assert.Equal(t, "mem://artifacts/manifest.yaml", r.Location())
}

func TestLoadRejectsBadManifests(t *testing.T) {
	cases := map[string]func(mapSource){
		"missing manifest": func(s mapSource) { delete(s, "manifest.yaml") },
		"missing contract": func(s mapSource) { delete(s, "contracts/pricing.yaml") },
		"version pin mismatch": func(s mapSource) {
			s["manifest.yaml"] = `
artifacts:
  - {id: d, role: demand, contract: contracts/demand.yaml, contract_version: v9, predictor: {kind: last_value}}
`
		},
		"duplicate id": func(s mapSource) {
			s["manifest.yaml"] = `
artifacts:
  - {id: d, role: demand, contract: contracts/demand.yaml, predictor: {kind: last_value}}
  - {id: d, role: demand, contract: contracts/demand.yaml, predictor: {kind: last_value}}
`
		},
		"wrong predictor for role": func(s mapSource) {
			s["manifest.yaml"] = `
artifacts:
  - {id: a, role: anomaly, contract: contracts/pricing.yaml, predictor: {kind: linear, weights: [1, 1]}}
`
		},
		"pricing target not log": func(s mapSource) {
			s["manifest.yaml"] = `
artifacts:
  - {id: p, role: pricing, contract: contracts/demand.yaml, predictor: {kind: linear, weights: [1, 1]}}
`
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := source()
			mutate(s)
			_, err := Load(context.Background(), s, "manifest.yaml", nil)
			assert.Error(t, err)
		})
	}
}

func TestArtifactAcceptsOnlyItsContract(t *testing.T) {
	r, err := Load(context.Background(), source(), "manifest.yaml", nil)
	require.NoError(t, err)
	a, _ := r.Get("pricing-linear")
	require.NotNil(t, a)

	assert.NoError(t, a.Accepts(models.AlignedVector{Contract: "pricing", Version: "v2", Values: []float64{1, 0}}))

	err = a.Accepts(models.AlignedVector{Contract: "pricing", Version: "v1", Values: []float64{1, 0}})
	assert.True(t, errs.Is(err, errs.KindModelInference))
	err = a.Accepts(models.AlignedVector{Contract: "demand", Version: "v2", Values: []float64{1, 0}})
	assert.True(t, errs.Is(err, errs.KindModelInference))
	err = a.Accepts(models.AlignedVector{Contract: "pricing", Version: "v2", Values: []float64{1}})
	assert.True(t, errs.Is(err, errs.KindModelInference))

	_, err = a.StepPredictor()
	assert.True(t, errs.Is(err, errs.KindArtifactUnavailable))
}

func TestGuardedStepChecksWidth(t *testing.T) {
	r, err := Load(context.Background(), source(), "manifest.yaml", nil)
	require.NoError(t, err)
	a, err := r.ForRole(models.RoleDemand)
	require.NoError(t, err)
	p, err := a.StepPredictor()
	require.NoError(t, err)

	y, err := p.PredictStep(context.Background(), [][]float64{{0.2, 1}, {0.4, 2}})
	require.NoError(t, err)
	assert.Equal(t, 0.4, y)

	_, err = p.PredictStep(context.Background(), [][]float64{{0.2}})
	assert.Error(t, err)
}
