package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sentinelstack/sentinel/internal/models"
)

// KafkaSink publishes notification events as JSON to a Kafka topic, keyed by
// signal so events for one signal stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink constructs the sink.
func NewKafkaSink(brokers []string, topic string, writeTimeout time.Duration) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaSink{writer: writer}, nil
}

// Emit publishes one event.
func (s *KafkaSink) Emit(ctx context.Context, event models.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Actor),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "level", Value: []byte(event.Level)},
		},
		Time: event.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error { return s.writer.Close() }
