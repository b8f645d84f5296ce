package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"plazacore/pkg/domain"
)

// RetryPolicy bounds how a Coordinator retries conflicted commits.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is tuned for in-process contention: a handful of
// attempts with short jittered backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseBackoff: 10 * time.Millisecond,
	MaxBackoff:  500 * time.Millisecond,
}

// Coordinator funnels every mutating operation through the store's
// transaction boundary and owns the retry policy for commit conflicts.
// Transaction functions must be safe to re-execute: each attempt sees a
// fresh snapshot and must re-read any state it depends on.
type Coordinator struct {
	store  domain.PersistentStore
	policy RetryPolicy
	logger *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator constructs a coordinator over the given store. A zero
// MaxAttempts falls back to the default policy.
func NewCoordinator(store domain.PersistentStore, policy RetryPolicy, logger *zap.Logger) *Coordinator {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = DefaultRetryPolicy.BaseBackoff
	}
	if policy.MaxBackoff < policy.BaseBackoff {
		policy.MaxBackoff = DefaultRetryPolicy.MaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		policy: policy,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
}

// Store exposes the underlying persistent store for read paths.
func (c *Coordinator) Store() domain.PersistentStore {
	return c.store
}

// Run executes fn inside a transaction, retrying on commit conflicts up to
// the policy's attempt bound. Non-conflict errors return immediately;
// exhausted retries return an error wrapping domain.ErrConflict.
func (c *Coordinator) Run(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	var last error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying conflicted transaction",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return domain.Result{}, err
			}
		}
		res, err := c.store.RunInTransaction(ctx, fn)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return res, err
		}
		last = err
	}
	return domain.Result{}, fmt.Errorf("commit conflict persisted after %d attempts: %w", c.policy.MaxAttempts, last)
}

// backoff returns an exponentially growing, jittered delay for the given
// attempt number (attempt >= 2).
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.policy.BaseBackoff << uint(attempt-2)
	if d > c.policy.MaxBackoff || d <= 0 {
		d = c.policy.MaxBackoff
	}
	c.randMu.Lock()
	jitter := 0.5 + c.rand.Float64()
	c.randMu.Unlock()
	return time.Duration(float64(d) * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
