// Package services wires the write pipeline, policy registry and dispatcher
// into the surface the ingest paths call.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/sentinel/internal/engine"
	"github.com/sentinelstack/sentinel/internal/metrics"
	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/notify"
	"github.com/sentinelstack/sentinel/internal/policy"
	"github.com/sentinelstack/sentinel/internal/utils"
)

// ErrUnknownSignal reports a write for a signal the policy pack does not
// declare.
var ErrUnknownSignal = errors.New("unknown signal")

// WriteInput is one sample submission as the ingest paths see it.
type WriteInput struct {
	SignalKey   string
	Value       float64
	FieldValues map[string]float64
	// Timestamp defaults to the current time when zero.
	Timestamp time.Time
	// Checked selects threshold evaluation; backfill writes pass false.
	Checked bool
}

// WriteService runs samples through the pipeline and feeds the dispatcher on
// tolerant-health transitions.
type WriteService struct {
	logger     *slog.Logger
	registry   *policy.Registry
	pipeline   *engine.Pipeline
	dispatcher *notify.Dispatcher
	latencies  *utils.LatencyTracker
}

// NewWriteService constructs the write facade. The dispatcher may be nil for
// evaluate-only deployments.
func NewWriteService(logger *slog.Logger, registry *policy.Registry, pipeline *engine.Pipeline, dispatcher *notify.Dispatcher) *WriteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteService{
		logger:     logger,
		registry:   registry,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// Write persists one sample and dispatches notifications when the tolerant
// flag flipped. Notifications for inactive policies are suppressed; the
// health flags still update.
func (s *WriteService) Write(ctx context.Context, in WriteInput) (engine.WriteResult, error) {
	entry, ok := s.registry.Lookup(in.SignalKey)
	if !ok {
		metrics.ObserveWrite(0, metrics.OutcomeRejected)
		return engine.WriteResult{}, fmt.Errorf("write %q: %w", in.SignalKey, ErrUnknownSignal)
	}

	start := time.Now()
	result, err := s.pipeline.Write(ctx, engine.WriteRequest{
		Signal:      &entry.Signal,
		Policy:      &entry.Policy,
		Value:       in.Value,
		FieldValues: in.FieldValues,
		Timestamp:   in.Timestamp,
		Checked:     in.Checked,
	})
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveWrite(duration, writeErrorOutcome(err))
		s.logger.Error("sample write failed",
			slog.String("signal", in.SignalKey), slog.Any("error", err))
		return result, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveWrite(duration, metrics.OutcomePersisted)
	metrics.CountTransition(string(result.Transition))
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("write latency snapshot",
			slog.Int("samples", count), slog.Duration("p95", p95))
	}

	if s.dispatcher != nil && entry.Policy.Active {
		switch result.Transition {
		case models.TransitionProblem, models.TransitionRecovery:
			s.dispatcher.Dispatch(ctx, &entry.Signal, &entry.Policy, result.Transition, result.State.TransitionSeq)
		}
	}
	return result, nil
}

// writeErrorOutcome classifies a pipeline error for the write counter:
// validation failures are rejections, everything else is a store or
// evaluation fault.
func writeErrorOutcome(err error) string {
	var missing *models.MissingFieldError
	var unknown *models.UnknownFieldError
	var badConfig *models.ConfigurationError
	if errors.As(err, &missing) || errors.As(err, &unknown) || errors.As(err, &badConfig) {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
