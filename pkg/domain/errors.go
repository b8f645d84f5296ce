package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine and persistence layers.
var (
	// ErrConflict is returned by a store when a commit-time version check
	// detects a concurrent mutation. The coordinator owns all retries.
	ErrConflict = errors.New("transaction conflict")
	// ErrUnavailable indicates the backing store itself is unreachable.
	// This is the only error category that escalates past the engine.
	ErrUnavailable = errors.New("store unavailable")
)

// NotFoundError is returned when a referenced record no longer exists at
// transaction time.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// CapacityError is returned when a facility has no spare seat at commit time.
type CapacityError struct {
	FacilityID string
	Capacity   int
	Occupied   int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("facility %s at capacity: %d/%d seats occupied", e.FacilityID, e.Occupied, e.Capacity)
}

// IsCapacityExceeded reports whether err wraps a CapacityError.
func IsCapacityExceeded(err error) bool {
	var ce CapacityError
	return errors.As(err, &ce)
}

// InvalidRequestError marks a request with an empty or malformed preference
// list. Terminal: the request is recorded unassignable without consuming a
// facility attempt.
type InvalidRequestError struct {
	PriorityKey int
	Reason      string
}

func (e InvalidRequestError) Error() string {
	return fmt.Sprintf("request %d invalid: %s", e.PriorityKey, e.Reason)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
