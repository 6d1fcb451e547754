package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/store"
)

// Evaluation carries the two health flags computed for one checked write.
type Evaluation struct {
	Healthy         bool
	TolerantHealthy bool
}

// Evaluator turns a just-written sample plus the trailing tolerance window
// into the instantaneous and debounced health flags.
type Evaluator struct {
	samples      store.SampleStore
	baseInterval time.Duration
	logger       *slog.Logger
}

// NewEvaluator constructs an evaluator reading windows from the given store.
// baseInterval is multiplied by each policy's tolerance to obtain the window.
func NewEvaluator(samples store.SampleStore, baseInterval time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if baseInterval <= 0 {
		baseInterval = time.Minute
	}
	return &Evaluator{samples: samples, baseInterval: baseInterval, logger: logger}
}

// Evaluate computes the health flags for the sample, which must already be
// persisted (the window read has to see it). prev supplies the tolerant
// flag's previous value, which is kept whenever the window is inconclusive.
//
// The tolerant flag flips to unhealthy only when every sample in the window
// crosses and there are at least two of them: a single boundary point near
// the window edge is not evidence of a sustained condition. It flips back to
// healthy only once the window holds no crossing sample at all.
func (e *Evaluator) Evaluate(ctx context.Context, signal *models.Signal, pol *models.ThresholdPolicy, sample models.Sample, prev models.HealthState) (Evaluation, error) {
	crossed, err := pol.CrossedBy(signal, sample)
	if err != nil {
		return Evaluation{}, err
	}
	eval := Evaluation{Healthy: !crossed, TolerantHealthy: prev.TolerantHealthy}

	window := pol.WindowDuration(e.baseInterval)
	if window == 0 {
		eval.TolerantHealthy = eval.Healthy
		return eval, nil
	}

	from := sample.Timestamp.Add(-window)
	samples, err := e.samples.ReadWindow(ctx, signal.Key, from, sample.Timestamp)
	if err != nil {
		return Evaluation{}, fmt.Errorf("tolerance window read: %w", err)
	}

	total := 0
	crossing := 0
	for _, s := range samples {
		total++
		sampleCrossed, crossErr := pol.CrossedBy(signal, s)
		if crossErr != nil {
			// Stored samples predating a configuration change may lack the
			// alert fields; they count as non-crossing.
			continue
		}
		if sampleCrossed {
			crossing++
		}
	}

	switch {
	case crossing == total && total >= 2:
		eval.TolerantHealthy = false
	case crossing == 0:
		eval.TolerantHealthy = true
	}
	return eval, nil
}
