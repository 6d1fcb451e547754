// Package ingest consumes telemetry samples from Kafka and feeds them to the
// write service.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sentinelstack/sentinel/internal/metrics"
	"github.com/sentinelstack/sentinel/internal/services"
)

// envelope is the wire format of one sample message. Timestamp is RFC 3339
// and optional; checked defaults to true.
type envelope struct {
	Signal    string             `json:"signal"`
	Value     float64            `json:"value"`
	Fields    map[string]float64 `json:"fields,omitempty"`
	Timestamp string             `json:"timestamp,omitempty"`
	Checked   *bool              `json:"checked,omitempty"`
}

// Consumer reads sample envelopes from a topic and submits them one at a
// time. Malformed messages and rejected writes are counted, logged and
// committed; only fetch and commit errors stop the loop.
type Consumer struct {
	logger *slog.Logger
	reader *kafka.Reader
	writes *services.WriteService
}

// Config carries the broker and topic settings for the sample consumer.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer constructs a consumer over the given group and topic.
func NewConsumer(logger *slog.Logger, cfg Config, writes *services.WriteService) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{logger: logger, reader: reader, writes: writes}, nil
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("sample consumer started",
		slog.String("topic", c.reader.Config().Topic),
		slog.String("group", c.reader.Config().GroupID))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handle(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	in, err := decodeEnvelope(payload)
	if err != nil {
		metrics.CountIngest(metrics.OutcomeRejected)
		c.logger.Warn("dropping malformed sample message", slog.Any("error", err))
		return
	}
	if _, err := c.writes.Write(ctx, in); err != nil {
		metrics.CountIngest(metrics.OutcomeError)
		c.logger.Warn("sample write failed",
			slog.String("signal", in.SignalKey), slog.Any("error", err))
		return
	}
	metrics.CountIngest(metrics.OutcomePersisted)
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeEnvelope(payload []byte) (services.WriteInput, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return services.WriteInput{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Signal == "" {
		return services.WriteInput{}, errors.New("envelope missing signal key")
	}

	in := services.WriteInput{
		SignalKey:   env.Signal,
		Value:       env.Value,
		FieldValues: env.Fields,
		Checked:     true,
	}
	if env.Checked != nil {
		in.Checked = *env.Checked
	}
	if env.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, env.Timestamp)
		if err != nil {
			return services.WriteInput{}, fmt.Errorf("parse timestamp: %w", err)
		}
		in.Timestamp = ts
	}
	return in, nil
}
