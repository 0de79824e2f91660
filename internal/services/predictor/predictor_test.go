package predictor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/service"
)

func intp(i int) *int { return &i }

func TestNewByKind(t *testing.T) {
	cases := []struct {
		spec Spec
		want interface{}
	}{
		{Spec{Kind: "last_value"}, &LastValue{}},
		{Spec{Kind: "moving_average", Periods: 3}, &MovingAverage{}},
		{Spec{Kind: "LINEAR_AR", Weights: []float64{0.5}}, &LinearAR{}},
		{Spec{Kind: "linear", Weights: []float64{1}}, &Linear{}},
		{Spec{Kind: "logistic", Weights: []float64{1}}, &Logistic{}},
		{Spec{Kind: "threshold", Index: intp(0)}, &Threshold{}},
	}
	for _, tc := range cases {
		t.Run(tc.spec.Kind, func(t *testing.T) {
			got, err := New(tc.spec)
			require.NoError(t, err)
			assert.IsType(t, tc.want, got)
		})
	}

	for _, bad := range []Spec{{Kind: "xgboost"}, {Kind: "moving_average"}, {Kind: "linear"}, {Kind: "threshold"}} {
		_, err := New(bad)
		assert.Error(t, err, bad.Kind)
	}
}

func TestStepPredictors(t *testing.T) {
	window := [][]float64{{9, 1}, {9, 2}, {9, 3}, {9, 4}}
	ctx := context.Background()

	var p service.StepPredictor = &LastValue{Index: -1}
	y, err := p.PredictStep(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 4.0, y)

	p = &MovingAverage{Index: 1, Periods: 2}
	y, err = p.PredictStep(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 3.5, y)

	p = &LinearAR{Index: 1, Weights: []float64{0.5, 0.25}, Intercept: 1}
	y, err = p.PredictStep(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1+2+0.75, y)

	p = &LastValue{Index: 5}
	_, err = p.PredictStep(ctx, window)
	assert.Error(t, err)
}

func TestRegressorAndClassifiers(t *testing.T) {
	ctx := context.Background()

	var r service.Regressor = &Linear{Weights: []float64{2, -1}, Intercept: 0.5}
	y, err := r.Predict(ctx, []float64{3, 1})
	require.NoError(t, err)
	assert.Equal(t, 5.5, y)
	_, err = r.Predict(ctx, []float64{3})
	assert.Error(t, err)

	var c service.Classifier = &Logistic{Weights: []float64{1}, Threshold: 0.5}
	score, flagged, err := c.Score(ctx, []float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
	assert.True(t, flagged)

	c = &Threshold{Index: 0, Cutoff: 2}
	_, flagged, err = c.Score(ctx, []float64{2})
	require.NoError(t, err)
	assert.False(t, flagged)
	_, flagged, _ = c.Score(ctx, []float64{2.01})
	assert.True(t, flagged)
}
