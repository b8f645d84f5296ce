package core

import (
	"context"
	"errors"
	"testing"

	"plazacore/pkg/domain"
)

func TestCapacityRuleBlocksOverfullCommit(t *testing.T) {
	store := NewMemoryStore(NewDefaultRulesEngine())
	f := seedFacility(t, store, "F", 1)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for key := 1; key <= 2; key++ {
			if _, err := tx.CreateAssignment(domain.Assignment{PriorityKey: key, FacilityID: f.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if got := len(store.ListAssignments()); got != 0 {
		t.Fatalf("blocked commit must leave no assignments, got %d", got)
	}
}

func TestCapacityRuleBlocksCounterAboveCapacity(t *testing.T) {
	store := NewMemoryStore(NewDefaultRulesEngine())
	f := seedFacility(t, store, "F", 1)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateFacility(f.ID, func(fac *domain.Facility) error {
			fac.Occupied = 2
			return nil
		})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
}

func TestUniquenessRuleBlocksDuplicateKeyState(t *testing.T) {
	view := stubRuleView{assignments: []domain.Assignment{
		{Base: domain.Base{ID: "a"}, PriorityKey: 4, FacilityID: "f1"},
		{Base: domain.Base{ID: "b"}, PriorityKey: 4, FacilityID: "f2"},
	}}
	res, err := NewAssignmentUniquenessRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation, got %+v", res)
	}
}

func TestRulesPassCleanState(t *testing.T) {
	store := NewMemoryStore(NewDefaultRulesEngine())
	f := seedFacility(t, store, "F", 2)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateAssignment(domain.Assignment{PriorityKey: 1, FacilityID: f.ID}); err != nil {
			return err
		}
		_, err := tx.UpdateFacility(f.ID, func(fac *domain.Facility) error {
			fac.Occupied = 1
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("clean commit rejected: %v", err)
	}
}

type stubRuleView struct {
	facilities  []domain.Facility
	assignments []domain.Assignment
}

func (v stubRuleView) ListFacilities() []domain.Facility   { return v.facilities }
func (v stubRuleView) ListRequests() []domain.Request      { return nil }
func (v stubRuleView) ListAssignments() []domain.Assignment { return v.assignments }

func (v stubRuleView) FindFacility(id string) (domain.Facility, bool) {
	for _, f := range v.facilities {
		if f.ID == id {
			return f, true
		}
	}
	return domain.Facility{}, false
}

func (v stubRuleView) FindAssignmentByKey(key int) (domain.Assignment, bool) {
	for _, a := range v.assignments {
		if a.PriorityKey == key {
			return a, true
		}
	}
	return domain.Assignment{}, false
}
