package anomaly

import (
	"context"
	"fmt"
	"math"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	"InvSight/internal/domain/service"
)

// Scorer runs an anomaly classifier over one aligned vector. It keeps no state between calls;
// the decision boundary is whatever the classifier encodes.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) Score(ctx context.Context, v models.AlignedVector, model service.Classifier) (models.AnomalyOutcome, error) {
	const op = "anomaly score"
	score, flagged, err := model.Score(ctx, v.Values)
	if err != nil {
		return models.AnomalyOutcome{}, errs.ModelInference(op, err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return models.AnomalyOutcome{}, errs.ModelInference(op, fmt.Errorf("non-finite score %v", score))
	}
	return models.AnomalyOutcome{Score: score, Flagged: flagged}, nil
}
