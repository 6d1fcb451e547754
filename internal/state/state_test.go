package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel/internal/cache"
	"github.com/sentinelstack/sentinel/internal/models"
)

type stubProvider struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newStubProvider() *stubProvider {
	return &stubProvider{store: make(map[string][]byte)}
}

func (s *stubProvider) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubProvider) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.store[key]; exists {
		return false, nil
	}
	s.store[key] = append([]byte(nil), value...)
	return true, nil
}

func (s *stubProvider) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

func (s *stubProvider) Close() error { return nil }

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Load(ctx, "load"); ok || err != nil {
		t.Fatalf("expected no state, got ok=%v err=%v", ok, err)
	}

	want := models.HealthState{Healthy: false, TolerantHealthy: true, TransitionSeq: 3}
	if err := s.Save(ctx, "load", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx, "load")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("state = %+v, want %+v", got, want)
	}
}

func TestCacheStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(newStubProvider())

	if _, ok, err := s.Load(ctx, "load"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := models.HealthState{Healthy: true, TolerantHealthy: false, TransitionSeq: 7}
	if err := s.Save(ctx, "load", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx, "load")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("state = %+v, want %+v", got, want)
	}
}
