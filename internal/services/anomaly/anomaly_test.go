package anomaly

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

type fixedClassifier struct {
	score   float64
	flagged bool
	err     error
}

func (f fixedClassifier) Score(context.Context, []float64) (float64, bool, error) {
	return f.score, f.flagged, f.err
}

func TestScore(t *testing.T) {
	s := NewScorer()
	v := models.AlignedVector{Values: []float64{1, 2}}

	out, err := s.Score(context.Background(), v, fixedClassifier{score: 0.93, flagged: true})
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyOutcome{Score: 0.93, Flagged: true}, out)

	_, err = s.Score(context.Background(), v, fixedClassifier{err: errors.New("boom")})
	assert.True(t, errs.Is(err, errs.KindModelInference))

	_, err = s.Score(context.Background(), v, fixedClassifier{score: math.NaN()})
	assert.True(t, errs.Is(err, errs.KindModelInference))
}

func TestLabelsTopOnePercent(t *testing.T) {
	qs := make([]float64, 200)
	for i := range qs {
		qs[i] = float64(i + 1)
	}
	th, labels := Labels(qs)
	assert.InDelta(t, 198.01, th, 1e-9)

	flagged := 0
	for _, l := range labels {
		if l {
			flagged++
		}
	}
	assert.Equal(t, 2, flagged)
	assert.True(t, labels[199])
	assert.False(t, labels[197])
}

func TestLabelsConstantQuantities(t *testing.T) {
	_, labels := Labels([]float64{3, 3, 3})
	assert.Equal(t, []bool{false, false, false}, labels)

	_, labels = Labels(nil)
	assert.Empty(t, labels)
}
