package repository

import (
	"context"
	"strconv"

	"AeroTrend/internal/domain/models"
	pkgkafka "AeroTrend/pkg/kafka"
)

// KafkaResultPublisher implements ResultPublisher for Kafka. Records are
// keyed by session id so a session's results stay ordered on one partition.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaResultPublisher creates Kafka publisher.
func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.ClassificationResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.SessionID), r, resultHeaders(r)...)
}

func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, rs []*models.ClassificationResult) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:     []byte(r.SessionID),
			Value:   r,
			Headers: resultHeaders(r),
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func resultHeaders(r *models.ClassificationResult) []pkgkafka.Header {
	return []pkgkafka.Header{
		{Key: "label", Value: r.Label.String()},
		{Key: "seq", Value: strconv.FormatUint(r.Seq, 10)},
	}
}
