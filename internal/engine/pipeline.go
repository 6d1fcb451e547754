package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/store"
)

// WriteRequest is one incoming sample for a signal.
type WriteRequest struct {
	Signal *models.Signal
	Policy *models.ThresholdPolicy
	Value  float64
	// FieldValues carries named sub-field values for signals with alert
	// fields.
	FieldValues map[string]float64
	// Timestamp defaults to the current time when zero.
	Timestamp time.Time
	// Checked selects whether threshold evaluation runs; raw/backfill writes
	// pass false.
	Checked bool
}

// WriteResult describes what one write did. When Persisted is true the sample
// is durable even if the returned error reports a failed evaluation step.
type WriteResult struct {
	Persisted  bool
	State      models.HealthState
	Transition models.Transition
}

// Pipeline is the orchestration entry point for sample writes: validate,
// append, evaluate, classify, persist. It returns the transition descriptor;
// feeding the dispatcher is the caller's responsibility.
type Pipeline struct {
	logger    *slog.Logger
	samples   store.SampleStore
	evaluator *Evaluator
	tracker   *Tracker
	now       func() time.Time
}

// NewPipeline constructs the write pipeline.
func NewPipeline(logger *slog.Logger, samples store.SampleStore, evaluator *Evaluator, tracker *Tracker) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		samples:   samples,
		evaluator: evaluator,
		tracker:   tracker,
		now:       time.Now,
	}
}

// Write runs one sample through the pipeline. Validation failures abort the
// write before anything is persisted. A window-read failure after the append
// leaves the sample persisted and the flags untouched; the error is returned
// so the caller can surface it.
func (p *Pipeline) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if req.Signal == nil || req.Policy == nil {
		return WriteResult{}, errors.New("write: signal and policy are required")
	}
	if err := req.Signal.ValidateFieldValues(req.FieldValues); err != nil {
		return WriteResult{}, err
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}
	sample := models.Sample{Timestamp: ts, Value: req.Value, Fields: req.FieldValues}

	unlock := p.tracker.Lock(req.Signal.Key)
	defer unlock()

	// The latest timestamp must be read before the append so the new sample
	// does not shadow the historical-write check.
	var (
		latest   time.Time
		haveData bool
	)
	if req.Checked {
		var err error
		latest, haveData, err = p.samples.LatestTimestamp(ctx, req.Signal.Key)
		if err != nil {
			return WriteResult{}, fmt.Errorf("latest timestamp for %s: %w", req.Signal.Key, err)
		}
	}

	if err := p.samples.Append(ctx, req.Signal.Key, sample); err != nil {
		return WriteResult{}, err
	}
	result := WriteResult{Persisted: true, Transition: models.TransitionSkipped}

	prev, err := p.tracker.Current(ctx, req.Signal.Key)
	if err != nil {
		return result, err
	}
	result.State = prev

	if !req.Checked {
		return result, nil
	}
	if haveData && ts.Before(latest) {
		p.logger.Debug("historical write skipped evaluation",
			slog.String("signal", req.Signal.Key),
			slog.Time("timestamp", ts),
			slog.Time("latest", latest))
		return result, nil
	}

	eval, err := p.evaluator.Evaluate(ctx, req.Signal, req.Policy, sample, prev)
	if err != nil {
		return result, err
	}

	next, transition, err := p.tracker.Commit(ctx, req.Signal.Key, prev, eval)
	if err != nil {
		return result, err
	}
	result.State = next
	result.Transition = transition
	return result, nil
}
