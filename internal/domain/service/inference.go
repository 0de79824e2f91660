package service

import (
	"context"
)

// StepPredictor predicts the next scaled target value from a full window.
type StepPredictor interface {
	PredictStep(ctx context.Context, window [][]float64) (float64, error)
}

// Regressor maps one aligned vector to a model-space output.
type Regressor interface {
	Predict(ctx context.Context, x []float64) (float64, error)
}

// Classifier maps one aligned vector to a continuous score and a decision.
type Classifier interface {
	Score(ctx context.Context, x []float64) (score float64, flagged bool, err error)
}
