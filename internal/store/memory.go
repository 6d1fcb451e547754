package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel/internal/models"
)

// MemoryStore is an in-memory SampleStore used by default and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[string][]models.Sample
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: make(map[string][]models.Sample)}
}

// Append stores the sample, keeping the per-signal slice sorted by timestamp
// so backfilled points land in order.
func (m *MemoryStore) Append(_ context.Context, signalKey string, sample models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.samples[signalKey]
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(sample.Timestamp)
	})
	series = append(series, models.Sample{})
	copy(series[idx+1:], series[idx:])
	series[idx] = sample
	m.samples[signalKey] = series
	return nil
}

// ReadWindow returns samples within [from, to] inclusive, ascending.
func (m *MemoryStore) ReadWindow(_ context.Context, signalKey string, from, to time.Time) ([]models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Sample
	for _, s := range m.samples[signalKey] {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// LatestTimestamp returns the newest stored timestamp for the signal.
func (m *MemoryStore) LatestTimestamp(_ context.Context, signalKey string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.samples[signalKey]
	if len(series) == 0 {
		return time.Time{}, false, nil
	}
	return series[len(series)-1].Timestamp, true, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
