package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"plazacore/pkg/domain"
)

// flakyStore forces a number of commit conflicts before delegating.
type flakyStore struct {
	domain.PersistentStore
	failures int
	calls    int
}

func (s *flakyStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.calls++
	if s.calls <= s.failures {
		return domain.Result{}, domain.ErrConflict
	}
	return s.PersistentStore.RunInTransaction(ctx, fn)
}

func newTestCoordinator(t *testing.T, store domain.PersistentStore, policy RetryPolicy) (*Coordinator, *[]time.Duration) {
	t.Helper()
	c := NewCoordinator(store, policy, nil)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestCoordinatorRetriesThroughConflicts(t *testing.T) {
	inner := NewMemoryStore(NewDefaultRulesEngine())
	store := &flakyStore{PersistentStore: inner, failures: 2}
	c, slept := newTestCoordinator(t, store, RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})

	_, err := c.Run(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateFacility(domain.Facility{Code: "F", Capacity: 1})
		return err
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*slept))
	}
	if got := len(inner.ListFacilities()); got != 1 {
		t.Fatalf("expected committed facility, got %d", got)
	}
}

func TestCoordinatorGivesUpAfterMaxAttempts(t *testing.T) {
	inner := NewMemoryStore(NewDefaultRulesEngine())
	store := &flakyStore{PersistentStore: inner, failures: 100}
	c, _ := newTestCoordinator(t, store, RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})

	_, err := c.Run(context.Background(), func(tx domain.Transaction) error { return nil })
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected wrapped conflict, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", store.calls)
	}
}

func TestCoordinatorDoesNotRetryOtherErrors(t *testing.T) {
	inner := NewMemoryStore(NewDefaultRulesEngine())
	store := &flakyStore{PersistentStore: inner}
	c, slept := newTestCoordinator(t, store, DefaultRetryPolicy)

	boom := errors.New("boom")
	_, err := c.Run(context.Background(), func(tx domain.Transaction) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected single attempt, got %d", store.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff, got %v", *slept)
	}
}

func TestCoordinatorStopsOnCancelledContext(t *testing.T) {
	inner := NewMemoryStore(NewDefaultRulesEngine())
	store := &flakyStore{PersistentStore: inner, failures: 100}
	c := NewCoordinator(store, RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	_, err := c.Run(ctx, func(tx domain.Transaction) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCoordinatorBackoffIsBoundedAndJittered(t *testing.T) {
	c := NewCoordinator(NewMemoryStore(nil), RetryPolicy{MaxAttempts: 8, BaseBackoff: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}, nil)
	for attempt := 2; attempt <= 8; attempt++ {
		d := c.backoff(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
		}
		if limit := time.Duration(1.5 * float64(100*time.Millisecond)); d > limit {
			t.Fatalf("attempt %d: backoff %v above jittered cap %v", attempt, d, limit)
		}
	}
}
