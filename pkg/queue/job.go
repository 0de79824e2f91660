package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type pulled from the queue. Name labels logs and
// status records, Type matches the type passed to Enqueue.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}
