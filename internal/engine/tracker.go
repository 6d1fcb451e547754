package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/state"
)

// Tracker owns the persisted per-signal health flags and serializes the
// evaluate-classify-persist sequence per signal.
type Tracker struct {
	states state.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker wraps a state store.
func NewTracker(states state.Store) *Tracker {
	return &Tracker{states: states, locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the signal's critical section and returns its release func.
// Writes for distinct signals proceed in parallel.
func (t *Tracker) Lock(signalKey string) func() {
	t.mu.Lock()
	lock, ok := t.locks[signalKey]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[signalKey] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Current returns the persisted state for the signal, defaulting to healthy
// for signals that were never evaluated.
func (t *Tracker) Current(ctx context.Context, signalKey string) (models.HealthState, error) {
	st, ok, err := t.states.Load(ctx, signalKey)
	if err != nil {
		return models.HealthState{}, fmt.Errorf("load state for %s: %w", signalKey, err)
	}
	if !ok {
		return models.NewHealthState(), nil
	}
	return st, nil
}

// Commit classifies the evaluation against the previous state and persists
// the new flags. The caller must hold the signal's lock.
func (t *Tracker) Commit(ctx context.Context, signalKey string, prev models.HealthState, eval Evaluation) (models.HealthState, models.Transition, error) {
	next := models.HealthState{
		Healthy:         eval.Healthy,
		TolerantHealthy: eval.TolerantHealthy,
		TransitionSeq:   prev.TransitionSeq,
	}

	transition := models.TransitionNone
	if eval.TolerantHealthy != prev.TolerantHealthy {
		next.TransitionSeq++
		if eval.TolerantHealthy {
			transition = models.TransitionRecovery
		} else {
			transition = models.TransitionProblem
		}
	}

	if next == prev {
		return next, transition, nil
	}
	if err := t.states.Save(ctx, signalKey, next); err != nil {
		return prev, models.TransitionNone, fmt.Errorf("save state for %s: %w", signalKey, err)
	}
	return next, transition, nil
}
