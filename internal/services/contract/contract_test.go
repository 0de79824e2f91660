package contract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
)

type fallbackCounter struct {
	fallbacks map[string]int
}

func (f *fallbackCounter) RecordError(string)              {}
func (f *fallbackCounter) RecordLatency(string, float64)   {}
func (f *fallbackCounter) RecordPrediction(string, string) {}
func (f *fallbackCounter) RecordSnapshot(int, float64)     {}
func (f *fallbackCounter) RecordEncodingFallback(contract, feature string) {
	if f.fallbacks == nil {
		f.fallbacks = map[string]int{}
	}
	f.fallbacks[contract+"/"+feature]++
}

func pricingSpec() models.ContractSpec {
	return models.ContractSpec{
		Name:    "pricing",
		Version: "v3",
		Features: []models.FeatureSpec{
			{Name: "quantity", Type: models.FeatureNumeric, Transform: models.TransformRobust, Scale: &models.ScaleParams{Kind: models.TransformRobust, Center: 5, Scale: 2}},
			{Name: "category", Type: models.FeatureCategorical, Transform: models.TransformLabel, Categories: []string{"food", "hardware", "toys"}},
			{Name: "price_per_unit", Type: models.FeatureNumeric, Transform: models.TransformMinMax, Scale: &models.ScaleParams{Kind: models.TransformMinMax, Min: 1, Max: 11}},
			{Name: "month", Type: models.FeatureNumeric},
			{Name: "stock_level", Type: models.FeatureNumeric, Transform: models.TransformStandard, Scale: &models.ScaleParams{Kind: models.TransformStandard, Mean: 50, Std: 10}},
		},
		Target: &models.TargetSpec{Name: "total_price", Scale: models.ScaleParams{Kind: models.TransformLog1p}},
	}
}

func TestScalerRoundTrip(t *testing.T) {
	params := []models.ScaleParams{
		{Kind: models.TransformIdentity},
		{Kind: models.TransformMinMax, Min: -3, Max: 120},
		{Kind: models.TransformMinMax, Min: 4, Max: 4},
		{Kind: models.TransformStandard, Mean: 17.5, Std: 3.2},
		{Kind: models.TransformRobust, Center: 9, Scale: 0},
		{Kind: models.TransformLog1p},
		{Kind: models.TransformLog},
	}
	xs := []float64{0.001, 0.5, 1, 7.25, 42, 999.9}
	for _, p := range params {
		t.Run(string(p.Kind), func(t *testing.T) {
			s, err := NewScaler(p)
			require.NoError(t, err)
			for _, x := range xs {
				assert.InDelta(t, x, s.Inverse(s.Transform(x)), 1e-9)
			}
		})
	}
}

func TestScalerRejectsBadParams(t *testing.T) {
	_, err := NewScaler(models.ScaleParams{Kind: "zscore"})
	assert.Error(t, err)
	_, err = NewScaler(models.ScaleParams{Kind: models.TransformMinMax, Min: 2, Max: 1})
	assert.Error(t, err)
	_, err = NewScaler(models.ScaleParams{Kind: models.TransformStandard, Mean: math.NaN()})
	assert.Error(t, err)
}

func TestNewContractValidates(t *testing.T) {
	spec := pricingSpec()
	spec.Features = append(spec.Features, models.FeatureSpec{Name: "month", Type: models.FeatureNumeric})
	_, err := New(spec)
	assert.Error(t, err)

	spec = pricingSpec()
	spec.Features[1].Categories = []string{"a", "a"}
	_, err = New(spec)
	assert.Error(t, err)

	spec = pricingSpec()
	spec.Features[0].Transform = models.TransformMinMax
	_, err = New(spec)
	assert.Error(t, err)
}

func TestContractIsImmutable(t *testing.T) {
	spec := pricingSpec()
	c, err := New(spec)
	require.NoError(t, err)

	spec.Features[0].Name = "changed"
	spec.Features[1].Categories[0] = "changed"
	spec.Features[2].Scale.Max = 1000

	assert.Equal(t, "quantity", c.Names()[0])
	got := c.Spec()
	assert.Equal(t, "food", got.Features[1].Categories[0])
	assert.Equal(t, 11.0, got.Features[2].Scale.Max)

	got.Features[0].Name = "again"
	assert.Equal(t, "quantity", c.Names()[0])
}

func TestAlignKeepsContractOrder(t *testing.T) {
	c, err := New(pricingSpec())
	require.NoError(t, err)
	e := NewEnforcer()

	subsets := []models.Row{
		{},
		{"month": models.Num(3)},
		{"stock_level": models.Num(60), "extra": models.Str("ignored"), "quantity": models.Num(7)},
		{"quantity": models.Num(7), "category": models.Str("toys"), "price_per_unit": models.Num(6), "month": models.Num(3), "stock_level": models.Num(60)},
	}
	for _, row := range subsets {
		v, err := e.AlignRow(row, c)
		require.NoError(t, err)
		assert.Len(t, v.Values, c.Len())
		assert.Equal(t, "v3", v.Version)
	}

	full, err := e.AlignRow(subsets[3], c)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0.5, 3, 1}, full.Values)
}

func TestAlignMissingStockLevelAtPositionFour(t *testing.T) {
	c, err := New(pricingSpec())
	require.NoError(t, err)
	pos, ok := c.Position("stock_level")
	require.True(t, ok)
	require.Equal(t, 4, pos)

	e := NewEnforcer()
	row := models.Row{"quantity": models.Num(7), "category": models.Str("toys"), "price_per_unit": models.Num(6), "month": models.Num(3), "stock_level": models.Num(60)}
	with, err := e.AlignRow(row, c)
	require.NoError(t, err)

	frame := &models.ReconciledFrame{Rows: []models.Row{row.Clone()}}
	delete(frame.Rows[0], "stock_level")
	without, err := e.Align(frame, c)
	require.NoError(t, err)
	require.Len(t, without, 1)

	assert.Equal(t, 0.0, without[0].Values[4])
	assert.Equal(t, with.Values[:4], without[0].Values[:4])
}

func TestAlignUnseenCategory(t *testing.T) {
	c, err := New(pricingSpec())
	require.NoError(t, err)
	m := &fallbackCounter{}
	e := NewEnforcer()
	e.SetMetrics(m)

	v, err := e.AlignRow(models.Row{"category": models.Str("garden")}, c)
	require.NoError(t, err)
	assert.Equal(t, float64(UnknownCode), v.Values[1])
	require.Len(t, v.Fallbacks, 1)
	assert.Equal(t, "garden", v.Fallbacks[0].Category)
	assert.Equal(t, 1, m.fallbacks["pricing/category"])
}

func TestAlignDefaultsUnusableNumbers(t *testing.T) {
	spec := pricingSpec()
	spec.Features[3] = models.FeatureSpec{Name: "month", Type: models.FeatureNumeric, Transform: models.TransformLog}
	c, err := New(spec)
	require.NoError(t, err)

	v, err := NewEnforcer().AlignRow(models.Row{"quantity": models.Str("n/a"), "month": models.Num(-1)}, c)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Values[0])
	assert.Equal(t, 0.0, v.Values[3])
}

func TestAlignRequiresSubject(t *testing.T) {
	spec := pricingSpec()
	spec.Subject = "product_id"
	c, err := New(spec)
	require.NoError(t, err)
	e := NewEnforcer()

	_, err = e.AlignRow(models.Row{"quantity": models.Num(1)}, c)
	assert.True(t, errs.Is(err, errs.KindFeatureContractViolation))

	v, err := e.AlignRow(models.Row{"product_id": models.Str(" 17 ")}, c)
	require.NoError(t, err)
	assert.Equal(t, "17", v.Subject)
}

func TestTargetInverse(t *testing.T) {
	c, err := New(pricingSpec())
	require.NoError(t, err)
	assert.Equal(t, models.TransformLog1p, c.TargetKind())
	assert.Equal(t, -1, c.TargetPosition())
	assert.InDelta(t, 250.0, c.InverseTarget(c.TransformTarget(250)), 1e-9)
}
