package core

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

func systemClock() Clock { return ClockFunc(time.Now) }

// MetricsRecorder observes engine and service operations. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	ObserveOperation(ctx context.Context, operation string, duration time.Duration, err error)
	ObserveOutcome(ctx context.Context, outcome OutcomeKind)
}

// NoopMetricsRecorder discards every observation.
type NoopMetricsRecorder struct{}

// ObserveOperation implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveOperation(context.Context, string, time.Duration, error) {}

// ObserveOutcome implements MetricsRecorder.
func (NoopMetricsRecorder) ObserveOutcome(context.Context, OutcomeKind) {}
