package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"plazacore/pkg/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(nil)
}

func createFacility(t *testing.T, s *Store, code string, capacity int) Facility {
	t.Helper()
	var created Facility
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateFacility(Facility{Code: code, Capacity: capacity})
		return err
	})
	if err != nil {
		t.Fatalf("create facility %s: %v", code, err)
	}
	return created
}

func TestFacilityLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	f := createFacility(t, s, "F1", 3)

	if f.ID == "" || f.CreatedAt.IsZero() || f.UpdatedAt.IsZero() {
		t.Fatalf("base fields not populated: %+v", f)
	}

	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateFacility(f.ID, func(fac *Facility) error {
			fac.Name = "North Plaza"
			fac.Capacity = 5
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := s.GetFacility(f.ID)
	if !ok || got.Name != "North Plaza" || got.Capacity != 5 {
		t.Fatalf("update not visible: %+v", got)
	}
	if got.CreatedAt != f.CreatedAt {
		t.Fatalf("created-at must be preserved")
	}

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteFacility(f.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.GetFacility(f.ID); ok {
		t.Fatalf("facility still visible after delete")
	}
}

func TestCreateFacilityRejectsNonPositiveCapacity(t *testing.T) {
	s := newStore(t)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateFacility(Facility{Code: "F", Capacity: 0})
		return err
	})
	if err == nil {
		t.Fatalf("expected capacity validation error")
	}
}

func TestDeleteFacilityBlockedByAssignments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	f := createFacility(t, s, "F1", 1)

	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateAssignment(Assignment{PriorityKey: 1, FacilityID: f.ID})
		return err
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteFacility(f.ID)
	})
	if err == nil {
		t.Fatalf("expected delete to be blocked")
	}
}

func TestCreateAssignmentEnforcesUniqueKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	f := createFacility(t, s, "F1", 2)

	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateAssignment(Assignment{PriorityKey: 9, FacilityID: f.ID}); err != nil {
			return err
		}
		_, err := tx.CreateAssignment(Assignment{PriorityKey: 9, FacilityID: f.ID})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate key rejection")
	}
}

func TestCreateAssignmentRequiresFacility(t *testing.T) {
	s := newStore(t)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateAssignment(Assignment{PriorityKey: 1, FacilityID: "missing"})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCommitConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	createFacility(t, s, "F1", 1)

	// Commit a second transaction while the first is in flight; the first
	// must observe a version bump and fail its commit.
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateFacility(Facility{Code: "OUTER", Capacity: 1}); err != nil {
			return err
		}
		_, inner := s.RunInTransaction(ctx, func(tx2 Transaction) error {
			_, err := tx2.CreateFacility(Facility{Code: "INNER", Capacity: 1})
			return err
		})
		if inner != nil {
			t.Fatalf("inner commit: %v", inner)
		}
		return nil
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	codes := map[string]bool{}
	for _, f := range s.ListFacilities() {
		codes[f.Code] = true
	}
	if !codes["INNER"] || codes["OUTER"] {
		t.Fatalf("conflicted transaction leaked state: %v", codes)
	}
}

func TestRulesBlockCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	s := NewStore(engine)

	res, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateFacility(Facility{Code: "F", Capacity: 1})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result, got %+v", res)
	}
	if got := len(s.ListFacilities()); got != 0 {
		t.Fatalf("blocked commit applied: %d facilities", got)
	}
}

func TestListRequestsSortedByPriorityKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, key := range []int{30, 10, 20} {
		_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.CreateRequest(Request{PriorityKey: key, Preferences: []string{"f"}})
			return err
		})
		if err != nil {
			t.Fatalf("create request %d: %v", key, err)
		}
	}
	requests := s.ListRequests()
	for i, want := range []int{10, 20, 30} {
		if requests[i].PriorityKey != want {
			t.Fatalf("position %d: want %d, got %d", i, want, requests[i].PriorityKey)
		}
	}
}

func TestListResultsAreClones(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateRequest(Request{PriorityKey: 1, Preferences: []string{"a", "b"}})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first := s.ListRequests()
	first[0].Preferences[0] = "mutated"
	second := s.ListRequests()
	if second[0].Preferences[0] != "a" {
		t.Fatalf("store state shared with caller slice")
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	f := createFacility(t, s, "F1", 2)
	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateAssignment(Assignment{PriorityKey: 1, FacilityID: f.ID}); err != nil {
			return err
		}
		_, err := tx.CreateHistoryRecord(HistoryRecord{PriorityKey: 1, Outcome: domain.OutcomeAssigned, RecordedAt: time.Now().UTC()})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap := s.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snap)
	if got := len(restored.ListAssignments()); got != 1 {
		t.Fatalf("want 1 assignment, got %d", got)
	}
	if got := len(restored.ListHistoryRecords()); got != 1 {
		t.Fatalf("want 1 history record, got %d", got)
	}
	if _, ok := restored.GetFacility(f.ID); !ok {
		t.Fatalf("facility missing after import")
	}
}

func TestImportStateRepairsSnapshot(t *testing.T) {
	s := newStore(t)
	f := createFacility(t, s, "F1", 2)

	snap := s.ExportState()
	snap.Assignments["dangling"] = Assignment{
		Base:        domain.Base{ID: "dangling"},
		PriorityKey: 5,
		FacilityID:  "gone",
	}
	for id, fac := range snap.Facilities {
		fac.Occupied = 99
		snap.Facilities[id] = fac
	}

	restored := NewStore(nil)
	restored.ImportState(snap)
	if got := len(restored.ListAssignments()); got != 0 {
		t.Fatalf("dangling assignment kept: %d", got)
	}
	got, _ := restored.GetFacility(f.ID)
	if got.Occupied != 0 {
		t.Fatalf("occupied not recomputed, got %d", got.Occupied)
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_everything",
		Severity: domain.SeverityBlock,
		Message:  "blocked",
	}}}, nil
}
