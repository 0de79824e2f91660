package forecast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
)

// lastValue returns the last component of the newest vector.
type lastValue struct{}

func (lastValue) PredictStep(_ context.Context, w [][]float64) (float64, error) {
	last := w[len(w)-1]
	return last[len(last)-1], nil
}

// meanOfLast averages the last component across the window.
type meanOfLast struct{}

func (meanOfLast) PredictStep(_ context.Context, w [][]float64) (float64, error) {
	s := 0.0
	for _, v := range w {
		s += v[len(v)-1]
	}
	return s / float64(len(w)), nil
}

type failingAt struct {
	step  int
	calls int
}

func (f *failingAt) PredictStep(_ context.Context, w [][]float64) (float64, error) {
	f.calls++
	if f.calls > f.step {
		return 0, errors.New("model crashed")
	}
	return 0.5, nil
}

// minmax inverse over [10, 110]
type span struct{}

func (span) InverseTarget(y float64) float64 { return y*100 + 10 }

func fullWindow(t *testing.T, n int, vec func(i int) []float64) *models.WindowState {
	t.Helper()
	w := models.NewWindowState("p1", n)
	for i := 0; i < n; i++ {
		require.NoError(t, w.Push(vec(i)))
	}
	return w
}

func TestForecastIdenticalWindowWithLastValueModel(t *testing.T) {
	v := []float64{0.2, 0.7, 0.35}
	w := fullWindow(t, 30, func(int) []float64 { return v })

	got, err := NewEngine().Forecast(context.Background(), w, lastValue{}, span{}, 7)
	require.NoError(t, err)
	require.Len(t, got, 7)
	for _, x := range got {
		assert.Equal(t, span{}.InverseTarget(0.35), x)
	}
}

func TestForecastLengthMatchesHorizon(t *testing.T) {
	w := fullWindow(t, 30, func(i int) []float64 { return []float64{float64(i) / 30} })
	e := NewEngine()
	for _, h := range []int{1, 2, 7, 30, 90} {
		got, err := e.Forecast(context.Background(), w, meanOfLast{}, span{}, h)
		require.NoError(t, err)
		assert.Len(t, got, h)
	}
	// the caller's window is untouched
	assert.Equal(t, 0.0, w.Vectors()[0][0])
}

func TestForecastIsDeterministic(t *testing.T) {
	w := fullWindow(t, 30, func(i int) []float64 { return []float64{float64(i%7) / 7, 1} })
	e := NewEngine()
	a, err := e.Forecast(context.Background(), w, meanOfLast{}, span{}, 14)
	require.NoError(t, err)
	b, err := e.Forecast(context.Background(), w, meanOfLast{}, span{}, 14)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecastRejectsShortWindow(t *testing.T) {
	w := fullWindow(t, 12, func(int) []float64 { return []float64{1} })
	got, err := NewEngine().Forecast(context.Background(), w, lastValue{}, span{}, 7)
	assert.Nil(t, got)
	assert.True(t, errs.Is(err, errs.KindInsufficientHistory))

	partial := models.NewWindowState("p1", 30)
	require.NoError(t, partial.Push([]float64{1}))
	_, err = NewEngine().Forecast(context.Background(), partial, lastValue{}, span{}, 7)
	assert.True(t, errs.Is(err, errs.KindInsufficientHistory))
}

func TestForecastCustomWindowLength(t *testing.T) {
	w := fullWindow(t, 5, func(int) []float64 { return []float64{0.1} })
	got, err := NewEngine(WithWindowLength(5)).Forecast(context.Background(), w, lastValue{}, span{}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestForecastModelFailureReturnsNothing(t *testing.T) {
	w := fullWindow(t, 30, func(int) []float64 { return []float64{1} })
	m := &failingAt{step: 3}
	got, err := NewEngine().Forecast(context.Background(), w, m, span{}, 7)
	assert.Nil(t, got)
	assert.True(t, errs.Is(err, errs.KindModelInference))
	assert.Equal(t, 4, m.calls)
}

func TestForecastRejectsBadHorizon(t *testing.T) {
	w := fullWindow(t, 30, func(int) []float64 { return []float64{1} })
	e := NewEngine(WithMaxHorizon(10))
	for _, h := range []int{0, -1, 11} {
		_, err := e.Forecast(context.Background(), w, lastValue{}, span{}, h)
		assert.True(t, errs.Is(err, errs.KindInvalidRequest))
	}
}
