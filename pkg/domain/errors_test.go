package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	err := NotFoundError{Entity: EntityFacility, ID: "f1"}
	if !IsNotFound(err) {
		t.Fatalf("direct error not matched")
	}
	if !IsNotFound(fmt.Errorf("lookup: %w", err)) {
		t.Fatalf("wrapped error not matched")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatalf("unrelated error matched")
	}
}

func TestIsCapacityExceeded(t *testing.T) {
	err := CapacityError{FacilityID: "f1", Capacity: 2, Occupied: 2}
	if !IsCapacityExceeded(err) {
		t.Fatalf("direct error not matched")
	}
	if !IsCapacityExceeded(fmt.Errorf("reserve: %w", err)) {
		t.Fatalf("wrapped error not matched")
	}
	if IsCapacityExceeded(ErrConflict) {
		t.Fatalf("conflict matched as capacity")
	}
}

func TestRuleViolationErrorMessage(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{
		{Rule: "facility_capacity", Severity: SeverityBlock, Message: "over capacity"},
	}}}
	if err.Error() == "" {
		t.Fatalf("empty message")
	}
	var target RuleViolationError
	if !errors.As(fmt.Errorf("commit: %w", err), &target) {
		t.Fatalf("wrapped violation not matched")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	if res.HasBlocking() {
		t.Fatalf("empty result blocking")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn treated as blocking")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !res.HasBlocking() || len(res.Violations) != 2 {
		t.Fatalf("merge lost violations: %+v", res)
	}
}

func TestFacilitySpareCapacity(t *testing.T) {
	f := Facility{Capacity: 3, Occupied: 1}
	if f.SpareCapacity() != 2 {
		t.Fatalf("want 2, got %d", f.SpareCapacity())
	}
	f.Occupied = 5
	if f.SpareCapacity() != 0 {
		t.Fatalf("spare capacity must floor at zero, got %d", f.SpareCapacity())
	}
}
