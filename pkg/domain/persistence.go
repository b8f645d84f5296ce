package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateFacility(Facility) (Facility, error)
	UpdateFacility(id string, mutator func(*Facility) error) (Facility, error)
	DeleteFacility(id string) error
	CreateRequest(Request) (Request, error)
	DeleteRequest(id string) error
	CreateAssignment(Assignment) (Assignment, error)
	DeleteAssignment(id string) error
	CreateHistoryRecord(HistoryRecord) (HistoryRecord, error)
	FindFacility(id string) (Facility, bool)
	FindRequest(id string) (Request, bool)
	FindAssignmentByKey(priorityKey int) (Assignment, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// the engine's pre-commit checks.
type TransactionView interface {
	ListFacilities() []Facility
	ListRequests() []Request
	ListAssignments() []Assignment
	ListHistoryRecords() []HistoryRecord
	FindFacility(id string) (Facility, bool)
	FindRequest(id string) (Request, bool)
	FindAssignmentByKey(priorityKey int) (Assignment, bool)
	AssignmentsForFacility(facilityID string) []Assignment
}

// PersistentStore is a minimal abstraction over durable backends. A store
// commits a transaction only if no concurrent writer committed since the
// transactional snapshot was taken; otherwise it returns ErrConflict and the
// caller retries. Rules registered with the store's engine are evaluated at
// commit time and can block the transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetFacility(id string) (Facility, bool)
	ListFacilities() []Facility
	ListRequests() []Request
	ListAssignments() []Assignment
	ListHistoryRecords() []HistoryRecord
}
