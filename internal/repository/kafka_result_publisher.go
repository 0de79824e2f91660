package repository

import (
	"context"
	"fmt"

	"InvSight/internal/domain/errs"
	"InvSight/internal/domain/models"
	domrepo "InvSight/internal/domain/repository"
	pkgkafka "InvSight/pkg/kafka"
)

type batchWriter interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaResultPublisher publishes results keyed by subject so one subject's
// forecasts stay ordered on a partition. The request id travels as trace header.
type KafkaResultPublisher struct {
	producer batchWriter
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.PredictionResult) error {
	if r == nil {
		return nil
	}
	return p.PublishBatch(ctx, []*models.PredictionResult{r})
}

// PublishBatch sends results in one write.
func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, results []*models.PredictionResult) error {
	if len(results) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(results))
	for _, r := range results {
		key := r.Subject
		if key == "" {
			key = string(r.Role)
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(key),
			Value: r,
			Headers: map[string]string{
				pkgkafka.TraceHeader: r.RequestID,
				"role":               string(r.Role),
			},
		})
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return errs.Store("kafka_publisher.publish", fmt.Errorf("publish %d results: %w", len(msgs), err))
	}
	return nil
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopResultPublisher drops results. Used when kafka is disabled.
type NopResultPublisher struct{}

func (NopResultPublisher) Publish(context.Context, *models.PredictionResult) error { return nil }
func (NopResultPublisher) Close() error                                            { return nil }

var (
	_ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
	_ domrepo.ResultPublisher = NopResultPublisher{}
)
