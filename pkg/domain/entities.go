// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by plazacore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityFacility identifies a facility record.
	EntityFacility EntityType = "facility"
	// EntityRequest identifies a pending seat request record.
	EntityRequest EntityType = "request"
	// EntityAssignment identifies an active seat assignment record.
	EntityAssignment EntityType = "assignment"
	// EntityHistoryRecord identifies an append-only history record.
	EntityHistoryRecord EntityType = "history_record"
)

// OutcomeKind enumerates terminal resolutions recorded to the history trail.
type OutcomeKind string

// Canonical outcome kinds written after every request resolution.
const (
	// OutcomeAssigned indicates a request was granted a seat.
	OutcomeAssigned OutcomeKind = "assigned"
	// OutcomeDisplaced indicates a holder lost its seat to a higher-priority request.
	OutcomeDisplaced OutcomeKind = "displaced"
	// OutcomeUnassignable indicates every preference was exhausted without a seat.
	OutcomeUnassignable OutcomeKind = "unassignable"
	// OutcomeDuplicateRemoved indicates a duplicate request was suppressed.
	OutcomeDuplicateRemoved OutcomeKind = "duplicate_removed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Facility is a named location offering a fixed pool of numbered seats.
// Occupied is a denormalized counter reconciled from the assignment set;
// it is mutated only inside coordinated transactions.
type Facility struct {
	Base
	Code     string `json:"code"`
	Name     string `json:"name"`
	Zone     string `json:"zone"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
	Occupied int    `json:"occupied"`
}

// SpareCapacity reports the number of unreserved seats.
func (f Facility) SpareCapacity() int {
	if f.Occupied >= f.Capacity {
		return 0
	}
	return f.Capacity - f.Occupied
}

// Request is a pending petition for a seat. PriorityKey is the unique
// requester identifier; a lower key outranks a higher one. Preferences
// lists acceptable facility IDs, most preferred first.
type Request struct {
	Base
	PriorityKey   int       `json:"priority_key"`
	Preferences   []string  `json:"preferences"`
	Submitter     string    `json:"submitter"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Displaced     bool      `json:"displaced"`
	DisplacedFrom *string   `json:"displaced_from,omitempty"`
}

// Assignment records that a priority key currently holds a seat at a facility.
// At most one active assignment exists per key.
type Assignment struct {
	Base
	PriorityKey   int     `json:"priority_key"`
	FacilityID    string  `json:"facility_id"`
	DisplacedFrom *string `json:"displaced_from,omitempty"`
}

// HistoryRecord is an append-only audit entry describing how a request
// was resolved. Records are never mutated after creation.
type HistoryRecord struct {
	Base
	PriorityKey int         `json:"priority_key"`
	Outcome     OutcomeKind `json:"outcome"`
	Message     string      `json:"message"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
