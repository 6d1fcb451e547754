package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile on empty tracker, got %v", got)
	}

	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if got := tracker.Count(); got != 10 {
		t.Fatalf("expected 10 samples, got %d", got)
	}
	if got := tracker.Percentile(0); got != time.Millisecond {
		t.Fatalf("expected 1ms min, got %v", got)
	}
	if got := tracker.Percentile(100); got != 10*time.Millisecond {
		t.Fatalf("expected 10ms max, got %v", got)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(4)
	for i := 1; i <= 6; i++ {
		tracker.Observe(time.Duration(i) * time.Second)
	}
	if got := tracker.Count(); got != 4 {
		t.Fatalf("expected window capped at 4, got %d", got)
	}
	// Oldest two samples (1s, 2s) are gone.
	if got := tracker.Percentile(0); got != 3*time.Second {
		t.Fatalf("expected 3s min after eviction, got %v", got)
	}
}
