package notify

import (
	"context"
	"log/slog"

	"github.com/sentinelstack/sentinel/internal/models"
)

// LogSink writes notification events to the structured log. It is always
// wired so transitions stay observable even without an external sink.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs the sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the event at a level matching its severity.
func (s *LogSink) Emit(_ context.Context, event models.NotificationEvent) error {
	attrs := []any{
		slog.String("id", event.ID),
		slog.String("recipient", event.Recipient),
		slog.String("signal", event.Actor),
		slog.String("verb", event.Verb),
		slog.String("subject", event.EmailSubject),
	}
	if event.Level == models.LevelWarning {
		s.logger.Warn("notification", attrs...)
	} else {
		s.logger.Info("notification", attrs...)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }
