package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"plazacore/pkg/domain"
)

// errAlreadyResolved aborts an attempt transaction when the request's key
// already holds an assignment or its pending record is gone.
var errAlreadyResolved = errors.New("request already resolved")

// OutcomeStatus is the terminal state of a single processed request.
type OutcomeStatus string

const (
	OutcomeStatusAssigned        OutcomeStatus = "assigned"
	OutcomeStatusUnassignable    OutcomeStatus = "unassignable"
	OutcomeStatusAlreadyResolved OutcomeStatus = "already_resolved"
)

// Outcome describes how ProcessOne resolved a request.
type Outcome struct {
	Status       OutcomeStatus
	FacilityID   string
	DisplacedKey *int
}

// Summary aggregates the results of a batch processing pass.
type Summary struct {
	Processed    int
	Assigned     int
	Unassignable int
}

// RebalanceReport describes a counter reconciliation pass.
type RebalanceReport struct {
	CorrectedFacilities int
}

// DedupReport describes a duplicate removal pass.
type DedupReport struct {
	Duplicates int
	Removed    int
}

// Engine resolves pending requests into assignments. All mutations run
// through the coordinator's transaction boundary; outcome history is
// recorded best effort after each commit.
type Engine struct {
	store   domain.PersistentStore
	coord   *Coordinator
	ledger  *CapacityLedger
	guard   *DeduplicationGuard
	history HistoryRecorder
	metrics MetricsRecorder
	logger  *zap.Logger
	clock   Clock
}

// NewEngine constructs an engine over the given store.
func NewEngine(store domain.PersistentStore, opts ...Option) *Engine {
	cfg := newSettings(opts...)
	coord := NewCoordinator(store, cfg.retry, cfg.logger)
	e := &Engine{
		store:   store,
		coord:   coord,
		ledger:  NewCapacityLedger(),
		guard:   NewDeduplicationGuard(),
		history: cfg.history,
		metrics: cfg.metrics,
		logger:  cfg.logger,
		clock:   cfg.clock,
	}
	if e.history == nil {
		e.history = NewStoreHistoryRecorder(coord, cfg.clock)
	}
	return e
}

// Coordinator exposes the engine's transaction coordinator.
func (e *Engine) Coordinator() *Coordinator { return e.coord }

// Guard exposes the engine's deduplication guard.
func (e *Engine) Guard() *DeduplicationGuard { return e.guard }

// ProcessOne resolves a single request: it walks the preference list in
// order, displacing a strictly lower-priority holder when every preferred
// facility is full, and moves terminal outcomes to history. Calling it
// again for an already resolved key reports OutcomeStatusAlreadyResolved
// without a second history record.
func (e *Engine) ProcessOne(ctx context.Context, req domain.Request) (Outcome, error) {
	start := time.Now()
	outcome, _, err := e.resolve(ctx, req)
	e.metrics.ObserveOperation(ctx, "process_one", time.Since(start), err)
	return outcome, err
}

// ProcessPending resolves the whole pending set in ascending key order.
// Requests displaced during the pass re-enter the queue and are resolved
// before the pass completes.
func (e *Engine) ProcessPending(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary, err := e.processPending(ctx)
	e.metrics.ObserveOperation(ctx, "process_pending", time.Since(start), err)
	return summary, err
}

func (e *Engine) processPending(ctx context.Context) (Summary, error) {
	queue := NewRequestQueue()
	queue.Load(e.store.ListRequests())
	var summary Summary
	for {
		req, ok := queue.Next()
		if !ok {
			return summary, nil
		}
		outcome, requeued, err := e.resolve(ctx, req)
		if err != nil {
			return summary, err
		}
		summary.Processed++
		switch outcome.Status {
		case OutcomeStatusAssigned:
			summary.Assigned++
		case OutcomeStatusUnassignable:
			summary.Unassignable++
		}
		for _, r := range requeued {
			queue.Enqueue(r)
		}
	}
}

// ProcessAll recomputes the entire allocation from scratch in a single
// transaction: existing assignments are discarded, counters reset, and the
// given batch replayed in ascending key order. Ascending replay makes
// displacement unnecessary, so the result is a pure function of facilities
// and the batch.
func (e *Engine) ProcessAll(ctx context.Context, requests []domain.Request) (Summary, error) {
	start := time.Now()
	summary, err := e.processAll(ctx, requests)
	e.metrics.ObserveOperation(ctx, "process_all", time.Since(start), err)
	return summary, err
}

type recordedOutcome struct {
	key     int
	outcome domain.OutcomeKind
	message string
}

func (e *Engine) processAll(ctx context.Context, requests []domain.Request) (Summary, error) {
	duplicates, survivors := e.guard.Scan(requests)
	batch := make([]domain.Request, len(survivors))
	copy(batch, survivors)
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].PriorityKey != batch[j].PriorityKey {
			return batch[i].PriorityKey < batch[j].PriorityKey
		}
		if !batch[i].SubmittedAt.Equal(batch[j].SubmittedAt) {
			return batch[i].SubmittedAt.Before(batch[j].SubmittedAt)
		}
		return batch[i].ID < batch[j].ID
	})

	var summary Summary
	var outcomes []recordedOutcome
	_, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
		summary = Summary{}
		outcomes = outcomes[:0]
		view := tx.Snapshot()
		for _, a := range view.ListAssignments() {
			if err := tx.DeleteAssignment(a.ID); err != nil {
				return err
			}
		}
		for _, f := range view.ListFacilities() {
			if err := e.ledger.Reset(tx, f.ID); err != nil {
				return err
			}
		}
		for _, r := range view.ListRequests() {
			if err := tx.DeleteRequest(r.ID); err != nil {
				return err
			}
		}
		seen := map[int]bool{}
		for _, req := range batch {
			summary.Processed++
			if seen[req.PriorityKey] {
				outcomes = append(outcomes, recordedOutcome{req.PriorityKey, domain.OutcomeDuplicateRemoved, "duplicate priority key in batch"})
				continue
			}
			seen[req.PriorityKey] = true
			if len(req.Preferences) == 0 {
				summary.Unassignable++
				outcomes = append(outcomes, recordedOutcome{req.PriorityKey, domain.OutcomeUnassignable, "no facility preferences"})
				continue
			}
			placed := ""
			for _, fid := range req.Preferences {
				if _, ok := tx.FindFacility(fid); !ok {
					continue
				}
				if err := e.ledger.TryReserve(tx, fid); err != nil {
					if domain.IsCapacityExceeded(err) {
						continue
					}
					return err
				}
				if _, err := tx.CreateAssignment(domain.Assignment{
					PriorityKey:   req.PriorityKey,
					FacilityID:    fid,
					DisplacedFrom: req.DisplacedFrom,
				}); err != nil {
					return err
				}
				placed = fid
				break
			}
			if placed != "" {
				summary.Assigned++
				outcomes = append(outcomes, recordedOutcome{req.PriorityKey, domain.OutcomeAssigned, fmt.Sprintf("assigned to facility %s", placed)})
				continue
			}
			summary.Unassignable++
			outcomes = append(outcomes, recordedOutcome{req.PriorityKey, domain.OutcomeUnassignable, "all preferred facilities unavailable"})
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	survivorByFingerprint := map[string]string{}
	for _, req := range survivors {
		survivorByFingerprint[Fingerprint(req)] = req.ID
	}
	for _, req := range duplicates {
		e.guard.Tombstone(Fingerprint(req), survivorByFingerprint[Fingerprint(req)], e.clock.Now().UTC())
		e.record(ctx, req.PriorityKey, domain.OutcomeDuplicateRemoved, "duplicate request removed")
		e.metrics.ObserveOutcome(ctx, domain.OutcomeDuplicateRemoved)
	}
	summary.Processed += len(duplicates)
	for _, o := range outcomes {
		e.record(ctx, o.key, o.outcome, o.message)
		e.metrics.ObserveOutcome(ctx, o.outcome)
	}
	return summary, nil
}

// Rebalance recomputes occupancy counters from the assignment set.
func (e *Engine) Rebalance(ctx context.Context) (RebalanceReport, error) {
	start := time.Now()
	var report RebalanceReport
	_, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
		corrected, err := e.ledger.Rebuild(tx)
		report = RebalanceReport{CorrectedFacilities: corrected}
		return err
	})
	e.metrics.ObserveOperation(ctx, "rebalance", time.Since(start), err)
	if err != nil {
		return RebalanceReport{}, err
	}
	if report.CorrectedFacilities > 0 {
		e.logger.Info("occupancy counters rebuilt", zap.Int("corrected_facilities", report.CorrectedFacilities))
	}
	return report, nil
}

// RemoveDuplicates scans the pending set, deletes duplicate requests in one
// transaction, and tombstones their fingerprints so resurrected copies are
// deleted again on sight.
func (e *Engine) RemoveDuplicates(ctx context.Context) (DedupReport, error) {
	start := time.Now()
	report, err := e.removeDuplicates(ctx)
	e.metrics.ObserveOperation(ctx, "remove_duplicates", time.Since(start), err)
	return report, err
}

func (e *Engine) removeDuplicates(ctx context.Context) (DedupReport, error) {
	duplicates, survivors := e.guard.Scan(e.store.ListRequests())
	report := DedupReport{Duplicates: len(duplicates)}
	if len(duplicates) == 0 {
		return report, nil
	}
	removed := 0
	_, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
		removed = 0
		for _, req := range duplicates {
			if _, ok := tx.FindRequest(req.ID); !ok {
				continue
			}
			if err := tx.DeleteRequest(req.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return DedupReport{}, err
	}
	survivorByFingerprint := map[string]string{}
	for _, req := range survivors {
		survivorByFingerprint[Fingerprint(req)] = req.ID
	}
	for _, req := range duplicates {
		e.guard.Tombstone(Fingerprint(req), survivorByFingerprint[Fingerprint(req)], e.clock.Now().UTC())
		e.record(ctx, req.PriorityKey, domain.OutcomeDuplicateRemoved, "duplicate request removed")
		e.metrics.ObserveOutcome(ctx, domain.OutcomeDuplicateRemoved)
	}
	report.Removed = removed
	return report, nil
}

// resolve drives a single request to a terminal state and returns any
// displaced requests that must re-enter the caller's queue.
func (e *Engine) resolve(ctx context.Context, req domain.Request) (Outcome, []domain.Request, error) {
	if e.guard.IsDuplicate(req) {
		if err := e.discardDuplicate(ctx, req); err != nil {
			return Outcome{}, nil, err
		}
		return Outcome{Status: OutcomeStatusAlreadyResolved}, nil, nil
	}
	if len(req.Preferences) == 0 {
		if err := e.finishUnassignable(ctx, req, "no facility preferences"); err != nil {
			return Outcome{}, nil, err
		}
		return Outcome{Status: OutcomeStatusUnassignable}, nil, nil
	}
	for _, fid := range req.Preferences {
		assigned, displaced, err := e.attempt(ctx, req, fid)
		switch {
		case err == nil:
			e.record(ctx, req.PriorityKey, domain.OutcomeAssigned, fmt.Sprintf("assigned to facility %s", fid))
			e.metrics.ObserveOutcome(ctx, domain.OutcomeAssigned)
			outcome := Outcome{Status: OutcomeStatusAssigned, FacilityID: assigned.FacilityID}
			var requeued []domain.Request
			if displaced != nil {
				key := displaced.PriorityKey
				outcome.DisplacedKey = &key
				requeued = append(requeued, *displaced)
				e.record(ctx, key, domain.OutcomeDisplaced, fmt.Sprintf("displaced from facility %s by key %d", fid, req.PriorityKey))
				e.metrics.ObserveOutcome(ctx, domain.OutcomeDisplaced)
				e.logger.Info("holder displaced",
					zap.String("facility_id", fid),
					zap.Int("displaced_key", key),
					zap.Int("priority_key", req.PriorityKey))
			}
			return outcome, requeued, nil
		case errors.Is(err, errAlreadyResolved):
			return Outcome{Status: OutcomeStatusAlreadyResolved}, nil, nil
		// Exhausted conflict retries count as no capacity at this facility:
		// some concurrent winner kept beating us to it.
		case domain.IsCapacityExceeded(err), domain.IsNotFound(err), errors.Is(err, domain.ErrConflict), isRuleViolation(err):
			e.logger.Debug("facility rejected request",
				zap.String("facility_id", fid),
				zap.Int("priority_key", req.PriorityKey),
				zap.Error(err))
		default:
			return Outcome{}, nil, err
		}
	}
	if err := e.finishUnassignable(ctx, req, "all preferred facilities unavailable"); err != nil {
		return Outcome{}, nil, err
	}
	return Outcome{Status: OutcomeStatusUnassignable}, nil, nil
}

// attempt tries to seat req at one facility inside a single transaction.
// When the facility is full it displaces the holder with the numerically
// largest key, but only if that key is strictly greater than the
// requester's.
func (e *Engine) attempt(ctx context.Context, req domain.Request, facilityID string) (domain.Assignment, *domain.Request, error) {
	var (
		created   domain.Assignment
		displaced *domain.Request
	)
	_, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
		created = domain.Assignment{}
		displaced = nil
		if req.ID != "" {
			if _, ok := tx.FindRequest(req.ID); !ok {
				return errAlreadyResolved
			}
		}
		if _, ok := tx.FindAssignmentByKey(req.PriorityKey); ok {
			if req.ID != "" {
				if err := tx.DeleteRequest(req.ID); err != nil {
					return err
				}
			}
			return errAlreadyResolved
		}
		fac, ok := tx.FindFacility(facilityID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFacility, ID: facilityID}
		}
		if fac.SpareCapacity() <= 0 {
			victim, ok := displacementVictim(tx, facilityID, req.PriorityKey)
			if !ok {
				return domain.CapacityError{FacilityID: facilityID, Capacity: fac.Capacity, Occupied: fac.Occupied}
			}
			if err := tx.DeleteAssignment(victim.ID); err != nil {
				return err
			}
			if err := e.ledger.Release(tx, facilityID); err != nil {
				return err
			}
			from := facilityID
			requeued, err := tx.CreateRequest(domain.Request{
				PriorityKey:   victim.PriorityKey,
				Preferences:   []string{facilityID},
				SubmittedAt:   e.clock.Now().UTC(),
				Displaced:     true,
				DisplacedFrom: &from,
			})
			if err != nil {
				return err
			}
			displaced = &requeued
		}
		if err := e.ledger.TryReserve(tx, facilityID); err != nil {
			return err
		}
		a, err := tx.CreateAssignment(domain.Assignment{
			PriorityKey:   req.PriorityKey,
			FacilityID:    facilityID,
			DisplacedFrom: req.DisplacedFrom,
		})
		if err != nil {
			return err
		}
		created = a
		if req.ID != "" {
			return tx.DeleteRequest(req.ID)
		}
		return nil
	})
	if err != nil {
		return domain.Assignment{}, nil, err
	}
	return created, displaced, nil
}

// displacementVictim returns the holder with the largest priority key at
// the facility, if that key is strictly greater than requesterKey.
func displacementVictim(tx domain.Transaction, facilityID string, requesterKey int) (domain.Assignment, bool) {
	var victim domain.Assignment
	found := false
	for _, a := range tx.Snapshot().AssignmentsForFacility(facilityID) {
		if !found || a.PriorityKey > victim.PriorityKey {
			victim = a
			found = true
		}
	}
	if !found || victim.PriorityKey <= requesterKey {
		return domain.Assignment{}, false
	}
	return victim, true
}

// finishUnassignable removes the pending record and records the terminal
// outcome.
func (e *Engine) finishUnassignable(ctx context.Context, req domain.Request, reason string) error {
	if req.ID != "" {
		if _, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindRequest(req.ID); !ok {
				return nil
			}
			return tx.DeleteRequest(req.ID)
		}); err != nil {
			return err
		}
	}
	e.record(ctx, req.PriorityKey, domain.OutcomeUnassignable, reason)
	e.metrics.ObserveOutcome(ctx, domain.OutcomeUnassignable)
	e.logger.Info("request unassignable",
		zap.Int("priority_key", req.PriorityKey),
		zap.String("reason", reason))
	return nil
}

// discardDuplicate deletes a tombstoned request's pending record.
func (e *Engine) discardDuplicate(ctx context.Context, req domain.Request) error {
	if req.ID != "" {
		if _, err := e.coord.Run(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindRequest(req.ID); !ok {
				return nil
			}
			return tx.DeleteRequest(req.ID)
		}); err != nil {
			return err
		}
	}
	e.record(ctx, req.PriorityKey, domain.OutcomeDuplicateRemoved, "tombstoned duplicate removed")
	e.metrics.ObserveOutcome(ctx, domain.OutcomeDuplicateRemoved)
	return nil
}

// record writes a history entry best effort.
func (e *Engine) record(ctx context.Context, priorityKey int, outcome domain.OutcomeKind, message string) {
	if err := e.history.Record(ctx, priorityKey, outcome, message); err != nil {
		e.logger.Warn("history record failed",
			zap.Int("priority_key", priorityKey),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

func isRuleViolation(err error) bool {
	var rve domain.RuleViolationError
	return errors.As(err, &rve)
}
