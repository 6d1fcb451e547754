// Package store provides the append-only time-series storage the alerting
// core reads and writes through.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelstack/sentinel/internal/models"
)

// SampleStore is the adapter to the underlying time-series database.
//
// Implementations must provide read-your-writes consistency: a ReadWindow
// issued after Append returns must include the appended sample.
type SampleStore interface {
	// Append persists one sample for the signal. Samples are immutable and
	// only ever appended.
	Append(ctx context.Context, signalKey string, sample models.Sample) error
	// ReadWindow returns all samples with from <= timestamp <= to, ordered by
	// timestamp ascending.
	ReadWindow(ctx context.Context, signalKey string, from, to time.Time) ([]models.Sample, error)
	// LatestTimestamp returns the newest stored timestamp for the signal; ok
	// is false when the signal has no samples yet.
	LatestTimestamp(ctx context.Context, signalKey string) (latest time.Time, ok bool, err error)
	Close() error
}

// StoreError wraps a read or write failure against the sample store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("sample store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
