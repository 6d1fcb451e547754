package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sentinelstack/sentinel/internal/cache"
	"github.com/sentinelstack/sentinel/internal/models"
)

const keyPrefix = "sentinel:health:"

// CacheStore persists health state as JSON in a cache.Provider so flags
// survive daemon restarts.
type CacheStore struct {
	provider cache.Provider
}

// NewCacheStore wraps the provider.
func NewCacheStore(provider cache.Provider) *CacheStore {
	return &CacheStore{provider: provider}
}

func (c *CacheStore) Load(ctx context.Context, signalKey string) (models.HealthState, bool, error) {
	payload, err := c.provider.Get(ctx, keyPrefix+signalKey)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.HealthState{}, false, nil
		}
		return models.HealthState{}, false, fmt.Errorf("load health state: %w", err)
	}
	var st models.HealthState
	if err := json.Unmarshal(payload, &st); err != nil {
		return models.HealthState{}, false, fmt.Errorf("decode health state: %w", err)
	}
	return st, true, nil
}

func (c *CacheStore) Save(ctx context.Context, signalKey string, st models.HealthState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode health state: %w", err)
	}
	// Health state has no natural expiry; store without TTL.
	if err := c.provider.Set(ctx, keyPrefix+signalKey, payload, 0); err != nil {
		return fmt.Errorf("save health state: %w", err)
	}
	return nil
}

func (c *CacheStore) Close() error { return c.provider.Close() }
