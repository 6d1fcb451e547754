package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel/internal/models"
	"github.com/sentinelstack/sentinel/internal/state"
	"github.com/sentinelstack/sentinel/internal/store"
)

func newTestPipeline(samples store.SampleStore) *Pipeline {
	evaluator := NewEvaluator(samples, time.Minute, nil)
	tracker := NewTracker(state.NewMemoryStore())
	return NewPipeline(nil, samples, evaluator, tracker)
}

func checkedWrite(key string, value float64, ts time.Time) WriteRequest {
	return WriteRequest{
		Signal:    &models.Signal{Key: key, Name: key},
		Policy:    &models.ThresholdPolicy{Operator: models.OpGreater, Threshold: 90, Active: true},
		Value:     value,
		Timestamp: ts,
		Checked:   true,
	}
}

func TestWriteTransitions(t *testing.T) {
	p := newTestPipeline(store.NewMemoryStore())
	ctx := context.Background()
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	result, err := p.Write(ctx, checkedWrite("cpu", 95, t0))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !result.Persisted || result.Transition != models.TransitionProblem {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.State.TransitionSeq != 1 {
		t.Fatalf("seq = %d, want 1", result.State.TransitionSeq)
	}

	// Staying unhealthy is not a transition.
	result, err = p.Write(ctx, checkedWrite("cpu", 96, t0.Add(time.Minute)))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if result.Transition != models.TransitionNone {
		t.Fatalf("transition = %s, want no_change", result.Transition)
	}
	if result.State.TransitionSeq != 1 {
		t.Fatalf("seq must not advance without a flip, got %d", result.State.TransitionSeq)
	}

	result, err = p.Write(ctx, checkedWrite("cpu", 40, t0.Add(2*time.Minute)))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if result.Transition != models.TransitionRecovery {
		t.Fatalf("transition = %s, want became_healthy", result.Transition)
	}
	if result.State.TransitionSeq != 2 {
		t.Fatalf("seq = %d, want 2", result.State.TransitionSeq)
	}
}

func TestWriteHistoricalSampleSkipsEvaluation(t *testing.T) {
	p := newTestPipeline(store.NewMemoryStore())
	ctx := context.Background()
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	if _, err := p.Write(ctx, checkedWrite("cpu", 40, t0)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A crossing sample with an older timestamp is stored but never
	// evaluated.
	result, err := p.Write(ctx, checkedWrite("cpu", 95, t0.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("historical write: %v", err)
	}
	if !result.Persisted {
		t.Fatal("historical sample must be persisted")
	}
	if result.Transition != models.TransitionSkipped {
		t.Fatalf("transition = %s, want not_evaluated", result.Transition)
	}
	if !result.State.TolerantHealthy || !result.State.Healthy {
		t.Fatalf("flags must be untouched, got %+v", result.State)
	}
}

func TestWriteUncheckedNeverEvaluates(t *testing.T) {
	samples := store.NewMemoryStore()
	p := newTestPipeline(samples)
	ctx := context.Background()

	req := checkedWrite("cpu", 99, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	req.Checked = false
	result, err := p.Write(ctx, req)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !result.Persisted || result.Transition != models.TransitionSkipped {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, err := samples.ReadWindow(ctx, "cpu", time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sample not stored, got %d", len(got))
	}
}

func TestWriteValidationRejectsBeforePersist(t *testing.T) {
	samples := store.NewMemoryStore()
	p := newTestPipeline(samples)
	ctx := context.Background()

	req := WriteRequest{
		Signal: &models.Signal{
			Key:         "disk",
			Name:        "disk",
			Fields:      []string{"used"},
			AlertFields: []string{"used"},
		},
		Policy:      &models.ThresholdPolicy{Operator: models.OpGreater, Threshold: 90, Active: true},
		Value:       1,
		FieldValues: map[string]float64{"bogus": 1},
		Checked:     true,
	}
	result, err := p.Write(ctx, req)
	var unknown *models.UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownFieldError", err)
	}
	if result.Persisted {
		t.Fatal("rejected write must not persist")
	}
	got, err := samples.ReadWindow(ctx, "disk", time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("store must stay empty, got %d samples", len(got))
	}
}

type windowFailStore struct {
	*store.MemoryStore
	fail bool
}

func (s *windowFailStore) ReadWindow(ctx context.Context, signalKey string, from, to time.Time) ([]models.Sample, error) {
	if s.fail {
		return nil, errors.New("backend unavailable")
	}
	return s.MemoryStore.ReadWindow(ctx, signalKey, from, to)
}

func TestWriteWindowReadFailureKeepsSampleAndFlags(t *testing.T) {
	samples := &windowFailStore{MemoryStore: store.NewMemoryStore()}
	evaluator := NewEvaluator(samples, time.Minute, nil)
	tracker := NewTracker(state.NewMemoryStore())
	p := NewPipeline(nil, samples, evaluator, tracker)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	req := checkedWrite("cpu", 95, t0)
	req.Policy.Tolerance = 5
	samples.fail = true
	result, err := p.Write(ctx, req)
	if err == nil {
		t.Fatal("expected window read error")
	}
	if !result.Persisted {
		t.Fatal("sample must be persisted despite the evaluation failure")
	}
	if result.Transition != models.TransitionSkipped {
		t.Fatalf("transition = %s", result.Transition)
	}
	if !result.State.TolerantHealthy {
		t.Fatal("flags must be untouched")
	}

	samples.fail = false
	got, err := samples.ReadWindow(ctx, "cpu", time.Time{}, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sample missing from store, got %d", len(got))
	}
}

func TestWriteConcurrentSameSignalSingleTransition(t *testing.T) {
	p := newTestPipeline(store.NewMemoryStore())
	ctx := context.Background()
	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	const writers = 16
	var wg sync.WaitGroup
	transitions := make([]models.Transition, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := p.Write(ctx, checkedWrite("cpu", 95, t0.Add(time.Duration(i)*time.Second)))
			if err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
			transitions[i] = result.Transition
		}(i)
	}
	wg.Wait()

	problems := 0
	for _, tr := range transitions {
		if tr == models.TransitionProblem {
			problems++
		}
	}
	if problems != 1 {
		t.Fatalf("exactly one write must report the problem transition, got %d", problems)
	}
}
