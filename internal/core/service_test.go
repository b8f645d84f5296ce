package core

import (
	"context"
	"errors"
	"testing"

	"plazacore/pkg/domain"
)

func TestCreateFacilityValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateFacility(ctx, domain.Facility{Code: "", Capacity: 1}); err == nil {
		t.Fatalf("expected empty code rejection")
	}
	if _, _, err := svc.CreateFacility(ctx, domain.Facility{Code: "F", Capacity: 0}); err == nil {
		t.Fatalf("expected non-positive capacity rejection")
	}
	created, _, err := svc.CreateFacility(ctx, domain.Facility{Code: "F", Capacity: 2, Occupied: 99})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Occupied != 0 {
		t.Fatalf("occupied must start at zero, got %d", created.Occupied)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("base fields not populated: %+v", created)
	}
}

func TestSubmitRequestRejectsBusyPriorityKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := mustFacility(t, svc, "F", 2)

	mustRequest(t, svc, 1, f.ID)
	_, _, err := svc.SubmitRequest(ctx, domain.Request{PriorityKey: 1, Preferences: []string{f.ID}})
	var invalid domain.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid request for pending key, got %v", err)
	}

	if _, err := svc.Engine().ProcessPending(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	_, _, err = svc.SubmitRequest(ctx, domain.Request{PriorityKey: 1, Preferences: []string{f.ID}})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid request for assigned key, got %v", err)
	}
}

func TestSubmitRequestRejectsEmptyPreferences(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.SubmitRequest(context.Background(), domain.Request{PriorityKey: 1})
	var invalid domain.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestSubmitRequestDefaultsSubmissionTime(t *testing.T) {
	svc := newTestService(t)
	f := mustFacility(t, svc, "F", 1)
	created, _, err := svc.SubmitRequest(context.Background(), domain.Request{PriorityKey: 1, Preferences: []string{f.ID}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created.SubmittedAt.Equal(testEpoch) {
		t.Fatalf("want clock time %v, got %v", testEpoch, created.SubmittedAt)
	}
}

func TestWithdrawRequest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := mustFacility(t, svc, "F", 1)
	req := mustRequest(t, svc, 1, f.ID)

	if _, err := svc.WithdrawRequest(ctx, req.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := len(svc.ListRequests()); got != 0 {
		t.Fatalf("expected empty pending set, got %d", got)
	}
	if _, err := svc.WithdrawRequest(ctx, req.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected not found on second withdraw, got %v", err)
	}
}

func TestDeleteFacilityBlockedWhileOccupied(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := mustFacility(t, svc, "F", 1)
	req := mustRequest(t, svc, 1, f.ID)
	if _, err := svc.Engine().ProcessOne(ctx, req); err != nil {
		t.Fatalf("seat: %v", err)
	}

	if _, err := svc.DeleteFacility(ctx, f.ID); err == nil {
		t.Fatalf("expected deletion block while assignments exist")
	}
}
