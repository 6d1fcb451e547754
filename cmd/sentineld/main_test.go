package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel/internal/cache"
	"github.com/sentinelstack/sentinel/internal/state"
)

type stubProvider struct {
	data map[string][]byte
}

func (s *stubProvider) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (s *stubProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.data[key] = value
	return nil
}

func (s *stubProvider) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *stubProvider) Del(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *stubProvider) Close() error { return nil }

func TestSelectStateStoreMemory(t *testing.T) {
	for _, backend := range []string{"", "memory"} {
		states, err := selectStateStore(backend, cache.NoopProvider{}, nil)
		if err != nil {
			t.Fatalf("backend %q: %v", backend, err)
		}
		if _, ok := states.(*state.MemoryStore); !ok {
			t.Fatalf("backend %q: got %T, want MemoryStore", backend, states)
		}
	}
}

func TestSelectStateStoreValkey(t *testing.T) {
	provider := &stubProvider{data: map[string][]byte{}}
	states, err := selectStateStore("valkey", provider, nil)
	if err != nil {
		t.Fatalf("selectStateStore: %v", err)
	}
	if _, ok := states.(*state.CacheStore); !ok {
		t.Fatalf("got %T, want CacheStore", states)
	}
}

// The valkey backend is the authoritative health-flag storage. Booting it
// over a provider that never retains data would reset every signal to
// healthy, so a crossing write re-classifies as a fresh problem on every
// restart and recoveries are never detected. Both degraded configurations
// must refuse to start.
func TestSelectStateStoreValkeyRequiresProvider(t *testing.T) {
	if _, err := selectStateStore("valkey", cache.NoopProvider{}, nil); err == nil {
		t.Fatal("valkey backend without a configured cache must fail")
	}

	dialErr := errors.New("dial tcp: connection refused")
	_, err := selectStateStore("valkey", cache.NoopProvider{}, dialErr)
	if err == nil {
		t.Fatal("valkey backend with a failed provider must fail")
	}
	if !errors.Is(err, dialErr) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}

func TestSelectStateStoreUnknownBackend(t *testing.T) {
	if _, err := selectStateStore("etcd", cache.NoopProvider{}, nil); err == nil {
		t.Fatal("unknown backend must fail")
	}
}
