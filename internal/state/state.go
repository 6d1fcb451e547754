// Package state persists the last known health flags per signal so transitions
// can be detected incrementally.
package state

import (
	"context"
	"sync"

	"github.com/sentinelstack/sentinel/internal/models"
)

// Store loads and saves per-signal health snapshots.
type Store interface {
	// Load returns the persisted state for the signal; ok is false when the
	// signal was never evaluated.
	Load(ctx context.Context, signalKey string) (st models.HealthState, ok bool, err error)
	Save(ctx context.Context, signalKey string, st models.HealthState) error
	Close() error
}

// MemoryStore keeps health state in memory; it is the default backend.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.HealthState
}

// NewMemoryStore returns an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]models.HealthState)}
}

func (m *MemoryStore) Load(_ context.Context, signalKey string) (models.HealthState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[signalKey]
	return st, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, signalKey string, st models.HealthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[signalKey] = st
	return nil
}

func (m *MemoryStore) Close() error { return nil }
