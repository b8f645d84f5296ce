package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSchedulerRunsPassesUntilCancelled(t *testing.T) {
	svc := newTestService(t)
	f := mustFacility(t, svc, "F", 1)
	mustRequest(t, svc, 1, f.ID)

	sched := NewScheduler(svc.Engine(), 5*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	deadline := time.After(150 * time.Millisecond)
	for {
		if len(svc.ListAssignments()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pending request never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	sched := NewScheduler(nil, 0, nil)
	if sched.interval != time.Minute {
		t.Fatalf("want default interval, got %v", sched.interval)
	}
}
