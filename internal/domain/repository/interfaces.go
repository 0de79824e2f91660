package repository

import (
	"context"

	"InvSight/internal/domain/models"
)

// EntityStore reads and writes named tabular collections.
type EntityStore interface {
	Fetch(ctx context.Context, collection string) (*models.EntityTable, error)
	// Write appends rows.
	Write(ctx context.Context, collection string, rows []models.Row) error
	// Upsert replaces rows matching on the collection's primary key and appends the rest.
	Upsert(ctx context.Context, collection string, rows []models.Row) error
	// Replace swaps the whole collection for rows.
	Replace(ctx context.Context, collection string, rows []models.Row) error
	Close() error
}

// ResultPublisher emits prediction results to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.PredictionResult) error
	Close() error
}

// WindowCache keeps per-subject windows between calls for incremental serving.
// Lock must be held around Load/Store for the same key.
type WindowCache interface {
	Load(ctx context.Context, key string) (*models.WindowState, bool, error)
	Store(ctx context.Context, key string, w *models.WindowState) error
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ArtifactSource reads versioned artifact manifests and contract documents.
type ArtifactSource interface {
	ReadObject(ctx context.Context, name string) ([]byte, error)
	Location() string
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordPrediction(role, outcome string)
	RecordEncodingFallback(contract, feature string)
	RecordSnapshot(rows int, seconds float64)
}
