// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"plazacore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Facility aliases domain.Facility for in-memory persistence operations.
	Facility = domain.Facility
	// Request aliases domain.Request.
	Request = domain.Request
	// Assignment aliases domain.Assignment.
	Assignment = domain.Assignment
	// HistoryRecord aliases domain.HistoryRecord.
	HistoryRecord = domain.HistoryRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	facilities  map[string]Facility
	requests    map[string]Request
	assignments map[string]Assignment
	history     map[string]HistoryRecord
}

func newMemoryState() memoryState {
	return memoryState{
		facilities:  make(map[string]Facility),
		requests:    make(map[string]Request),
		assignments: make(map[string]Assignment),
		history:     make(map[string]HistoryRecord),
	}
}

func cloneFacility(f Facility) Facility { return f }

func cloneRequest(r Request) Request {
	if r.Preferences != nil {
		prefs := make([]string, len(r.Preferences))
		copy(prefs, r.Preferences)
		r.Preferences = prefs
	}
	if r.DisplacedFrom != nil {
		from := *r.DisplacedFrom
		r.DisplacedFrom = &from
	}
	return r
}

func cloneAssignment(a Assignment) Assignment {
	if a.DisplacedFrom != nil {
		from := *a.DisplacedFrom
		a.DisplacedFrom = &from
	}
	return a
}

func cloneHistoryRecord(h HistoryRecord) HistoryRecord { return h }

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.facilities {
		out.facilities[k] = cloneFacility(v)
	}
	for k, v := range s.requests {
		out.requests[k] = cloneRequest(v)
	}
	for k, v := range s.assignments {
		out.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.history {
		out.history[k] = cloneHistoryRecord(v)
	}
	return out
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Facilities  map[string]Facility      `json:"facilities"`
	Requests    map[string]Request       `json:"requests"`
	Assignments map[string]Assignment    `json:"assignments"`
	History     map[string]HistoryRecord `json:"history"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Facilities:  make(map[string]Facility, len(state.facilities)),
		Requests:    make(map[string]Request, len(state.requests)),
		Assignments: make(map[string]Assignment, len(state.assignments)),
		History:     make(map[string]HistoryRecord, len(state.history)),
	}
	for k, v := range state.facilities {
		s.Facilities[k] = cloneFacility(v)
	}
	for k, v := range state.requests {
		s.Requests[k] = cloneRequest(v)
	}
	for k, v := range state.assignments {
		s.Assignments[k] = cloneAssignment(v)
	}
	for k, v := range state.history {
		s.History[k] = cloneHistoryRecord(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Facilities {
		state.facilities[k] = cloneFacility(v)
	}
	for k, v := range s.Requests {
		state.requests[k] = cloneRequest(v)
	}
	for k, v := range s.Assignments {
		state.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.History {
		state.history[k] = cloneHistoryRecord(v)
	}
	return state
}

// migrateSnapshot normalizes a persisted snapshot before it is imported:
// dangling references are dropped, non-positive capacities clamped, and the
// occupied counters recomputed from the authoritative assignment set.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Facilities == nil {
		snapshot.Facilities = map[string]Facility{}
	}
	if snapshot.Requests == nil {
		snapshot.Requests = map[string]Request{}
	}
	if snapshot.Assignments == nil {
		snapshot.Assignments = map[string]Assignment{}
	}
	if snapshot.History == nil {
		snapshot.History = map[string]HistoryRecord{}
	}

	facilityExists := func(id string) bool {
		_, ok := snapshot.Facilities[id]
		return ok
	}

	for id, assignment := range snapshot.Assignments {
		if assignment.FacilityID == "" || !facilityExists(assignment.FacilityID) {
			delete(snapshot.Assignments, id)
			continue
		}
		if assignment.DisplacedFrom != nil && !facilityExists(*assignment.DisplacedFrom) {
			assignment.DisplacedFrom = nil
		}
		snapshot.Assignments[id] = assignment
	}

	for id, request := range snapshot.Requests {
		if request.DisplacedFrom != nil && !facilityExists(*request.DisplacedFrom) {
			request.DisplacedFrom = nil
			request.Displaced = false
		}
		snapshot.Requests[id] = request
	}

	occupancy := make(map[string]int, len(snapshot.Facilities))
	for _, assignment := range snapshot.Assignments {
		occupancy[assignment.FacilityID]++
	}
	for id, facility := range snapshot.Facilities {
		if facility.Capacity <= 0 {
			facility.Capacity = 1
		}
		facility.Occupied = occupancy[id]
		snapshot.Facilities[id] = facility
	}

	return snapshot
}

// Store provides an in-memory transactional store for the core domain.
// Commits use optimistic concurrency: a transaction clones the state at a
// version and commits only if no other transaction committed in between,
// otherwise domain.ErrConflict is returned and the caller retries.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	version uint64
	engine  *RulesEngine
	nowFn   func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.version++
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) *transactionView {
	return &transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is taken at the current version; the commit succeeds only if the
// version is unchanged when fn returns, so concurrent transactions serialize
// through retry rather than blocking each other for their full duration.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.RLock()
	base := s.version
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != base {
		return Result{}, domain.ErrConflict
	}
	s.state = tx.state
	s.version++
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetFacility returns a facility by ID.
func (s *Store) GetFacility(id string) (Facility, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.facilities[id]
	if !ok {
		return Facility{}, false
	}
	return cloneFacility(f), true
}

// ListFacilities returns all facilities ordered by code then ID.
func (s *Store) ListFacilities() []Facility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Facility, 0, len(s.state.facilities))
	for _, f := range s.state.facilities {
		out = append(out, cloneFacility(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListRequests returns all pending requests ordered by ascending priority key.
func (s *Store) ListRequests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, 0, len(s.state.requests))
	for _, r := range s.state.requests {
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityKey != out[j].PriorityKey {
			return out[i].PriorityKey < out[j].PriorityKey
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAssignments returns all active assignments ordered by priority key.
func (s *Store) ListAssignments() []Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assignment, 0, len(s.state.assignments))
	for _, a := range s.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PriorityKey < out[j].PriorityKey
	})
	return out
}

// ListHistoryRecords returns the audit trail ordered by recording time then ID.
func (s *Store) ListHistoryRecords() []HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryRecord, 0, len(s.state.history))
	for _, h := range s.state.history {
		out = append(out, cloneHistoryRecord(h))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindFacility exposes facility lookup within the transaction scope.
func (tx *transaction) FindFacility(id string) (Facility, bool) {
	f, ok := tx.state.facilities[id]
	if !ok {
		return Facility{}, false
	}
	return cloneFacility(f), true
}

// FindRequest exposes pending request lookup within the transaction scope.
func (tx *transaction) FindRequest(id string) (Request, bool) {
	r, ok := tx.state.requests[id]
	if !ok {
		return Request{}, false
	}
	return cloneRequest(r), true
}

// FindAssignmentByKey returns the active assignment for a priority key, if any.
func (tx *transaction) FindAssignmentByKey(priorityKey int) (Assignment, bool) {
	for _, a := range tx.state.assignments {
		if a.PriorityKey == priorityKey {
			return cloneAssignment(a), true
		}
	}
	return Assignment{}, false
}

func (tx *transaction) CreateFacility(f Facility) (Facility, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.facilities[f.ID]; exists {
		return Facility{}, fmt.Errorf("facility %q already exists", f.ID)
	}
	if f.Capacity <= 0 {
		return Facility{}, fmt.Errorf("facility %q capacity must be positive", f.ID)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.facilities[f.ID] = cloneFacility(f)
	tx.recordChange(Change{Entity: domain.EntityFacility, Action: domain.ActionCreate, After: cloneFacility(f)})
	return cloneFacility(f), nil
}

func (tx *transaction) UpdateFacility(id string, mutator func(*Facility) error) (Facility, error) {
	existing, ok := tx.state.facilities[id]
	if !ok {
		return Facility{}, domain.NotFoundError{Entity: domain.EntityFacility, ID: id}
	}
	before := cloneFacility(existing)
	updated := cloneFacility(existing)
	if err := mutator(&updated); err != nil {
		return Facility{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.facilities[id] = cloneFacility(updated)
	tx.recordChange(Change{Entity: domain.EntityFacility, Action: domain.ActionUpdate, Before: before, After: cloneFacility(updated)})
	return cloneFacility(updated), nil
}

func (tx *transaction) DeleteFacility(id string) error {
	existing, ok := tx.state.facilities[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityFacility, ID: id}
	}
	for _, a := range tx.state.assignments {
		if a.FacilityID == id {
			return fmt.Errorf("facility %q still has active assignments", id)
		}
	}
	delete(tx.state.facilities, id)
	tx.recordChange(Change{Entity: domain.EntityFacility, Action: domain.ActionDelete, Before: cloneFacility(existing)})
	return nil
}

func (tx *transaction) CreateRequest(r Request) (Request, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return Request{}, fmt.Errorf("request %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = tx.now
	}
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: cloneRequest(r)})
	return cloneRequest(r), nil
}

func (tx *transaction) DeleteRequest(id string) error {
	existing, ok := tx.state.requests[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRequest, ID: id}
	}
	delete(tx.state.requests, id)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionDelete, Before: cloneRequest(existing)})
	return nil
}

func (tx *transaction) CreateAssignment(a Assignment) (Assignment, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assignments[a.ID]; exists {
		return Assignment{}, fmt.Errorf("assignment %q already exists", a.ID)
	}
	if _, ok := tx.state.facilities[a.FacilityID]; !ok {
		return Assignment{}, domain.NotFoundError{Entity: domain.EntityFacility, ID: a.FacilityID}
	}
	for _, existing := range tx.state.assignments {
		if existing.PriorityKey == a.PriorityKey {
			return Assignment{}, fmt.Errorf("priority key %d already holds assignment %q", a.PriorityKey, existing.ID)
		}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.assignments[a.ID] = cloneAssignment(a)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionCreate, After: cloneAssignment(a)})
	return cloneAssignment(a), nil
}

func (tx *transaction) DeleteAssignment(id string) error {
	existing, ok := tx.state.assignments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAssignment, ID: id}
	}
	delete(tx.state.assignments, id)
	tx.recordChange(Change{Entity: domain.EntityAssignment, Action: domain.ActionDelete, Before: cloneAssignment(existing)})
	return nil
}

func (tx *transaction) CreateHistoryRecord(h HistoryRecord) (HistoryRecord, error) {
	if h.ID == "" {
		h.ID = tx.store.newID()
	}
	if _, exists := tx.state.history[h.ID]; exists {
		return HistoryRecord{}, fmt.Errorf("history record %q already exists", h.ID)
	}
	h.CreatedAt = tx.now
	h.UpdatedAt = tx.now
	if h.RecordedAt.IsZero() {
		h.RecordedAt = tx.now
	}
	tx.state.history[h.ID] = cloneHistoryRecord(h)
	tx.recordChange(Change{Entity: domain.EntityHistoryRecord, Action: domain.ActionCreate, After: cloneHistoryRecord(h)})
	return cloneHistoryRecord(h), nil
}

// ListFacilities returns facilities from the transactional state ordered by code then ID.
func (v *transactionView) ListFacilities() []Facility {
	out := make([]Facility, 0, len(v.state.facilities))
	for _, f := range v.state.facilities {
		out = append(out, cloneFacility(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListRequests returns the pending set ordered by ascending priority key.
func (v *transactionView) ListRequests() []Request {
	out := make([]Request, 0, len(v.state.requests))
	for _, r := range v.state.requests {
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityKey != out[j].PriorityKey {
			return out[i].PriorityKey < out[j].PriorityKey
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAssignments returns active assignments ordered by priority key.
func (v *transactionView) ListAssignments() []Assignment {
	out := make([]Assignment, 0, len(v.state.assignments))
	for _, a := range v.state.assignments {
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PriorityKey < out[j].PriorityKey
	})
	return out
}

// ListHistoryRecords returns the audit trail ordered by recording time then ID.
func (v *transactionView) ListHistoryRecords() []HistoryRecord {
	out := make([]HistoryRecord, 0, len(v.state.history))
	for _, h := range v.state.history {
		out = append(out, cloneHistoryRecord(h))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *transactionView) FindFacility(id string) (Facility, bool) {
	f, ok := v.state.facilities[id]
	if !ok {
		return Facility{}, false
	}
	return cloneFacility(f), true
}

func (v *transactionView) FindRequest(id string) (Request, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return Request{}, false
	}
	return cloneRequest(r), true
}

func (v *transactionView) FindAssignmentByKey(priorityKey int) (Assignment, bool) {
	for _, a := range v.state.assignments {
		if a.PriorityKey == priorityKey {
			return cloneAssignment(a), true
		}
	}
	return Assignment{}, false
}

// AssignmentsForFacility returns the holders of a facility ordered by priority key.
func (v *transactionView) AssignmentsForFacility(facilityID string) []Assignment {
	var out []Assignment
	for _, a := range v.state.assignments {
		if a.FacilityID == facilityID {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PriorityKey < out[j].PriorityKey
	})
	return out
}
