package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"plazacore/pkg/domain"
)

// Service is the submission-side facade: facility administration and
// request intake. Allocation itself lives on the Engine, which the service
// owns and exposes.
type Service struct {
	store   domain.PersistentStore
	engine  *Engine
	metrics MetricsRecorder
	logger  *zap.Logger
	clock   Clock
}

// NewService constructs a service over the given store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	cfg := newSettings(opts...)
	return &Service{
		store:   store,
		engine:  NewEngine(store, opts...),
		metrics: cfg.metrics,
		logger:  cfg.logger,
		clock:   cfg.clock,
	}
}

// NewInMemoryService wires a service over a fresh in-memory store with the
// default rules engine. Intended for tests and ephemeral deployments.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(NewMemoryStore(NewDefaultRulesEngine()), opts...)
}

// Engine returns the allocation engine bound to this service's store.
func (s *Service) Engine() *Engine { return s.engine }

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// CreateFacility registers a facility. Capacity must be positive and the
// code non-empty.
func (s *Service) CreateFacility(ctx context.Context, facility domain.Facility) (domain.Facility, domain.Result, error) {
	start := time.Now()
	var created domain.Facility
	res, err := s.run(ctx, "create_facility", start, func(tx domain.Transaction) error {
		if strings.TrimSpace(facility.Code) == "" {
			return fmt.Errorf("facility code must not be empty")
		}
		if facility.Capacity <= 0 {
			return fmt.Errorf("facility %q capacity must be positive, got %d", facility.Code, facility.Capacity)
		}
		facility.Occupied = 0
		var err error
		created, err = tx.CreateFacility(facility)
		return err
	})
	if err != nil {
		return domain.Facility{}, res, err
	}
	return created, res, nil
}

// UpdateFacility applies mutator to an existing facility.
func (s *Service) UpdateFacility(ctx context.Context, id string, mutator func(*domain.Facility) error) (domain.Facility, domain.Result, error) {
	start := time.Now()
	var updated domain.Facility
	res, err := s.run(ctx, "update_facility", start, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateFacility(id, mutator)
		return err
	})
	if err != nil {
		return domain.Facility{}, res, err
	}
	return updated, res, nil
}

// DeleteFacility removes a facility. The store rejects deletion while
// assignments still reference it.
func (s *Service) DeleteFacility(ctx context.Context, id string) (domain.Result, error) {
	start := time.Now()
	return s.run(ctx, "delete_facility", start, func(tx domain.Transaction) error {
		return tx.DeleteFacility(id)
	})
}

// SubmitRequest adds a request to the pending set. The priority key must
// not already hold an assignment or appear among pending requests, and the
// preference list must not be empty.
func (s *Service) SubmitRequest(ctx context.Context, req domain.Request) (domain.Request, domain.Result, error) {
	start := time.Now()
	var created domain.Request
	res, err := s.run(ctx, "submit_request", start, func(tx domain.Transaction) error {
		if len(req.Preferences) == 0 {
			return domain.InvalidRequestError{PriorityKey: req.PriorityKey, Reason: "empty preference list"}
		}
		if _, ok := tx.FindAssignmentByKey(req.PriorityKey); ok {
			return domain.InvalidRequestError{PriorityKey: req.PriorityKey, Reason: "priority key already holds an assignment"}
		}
		for _, pending := range tx.Snapshot().ListRequests() {
			if pending.PriorityKey == req.PriorityKey {
				return domain.InvalidRequestError{PriorityKey: req.PriorityKey, Reason: "priority key already pending"}
			}
		}
		if req.SubmittedAt.IsZero() {
			req.SubmittedAt = s.clock.Now().UTC()
		}
		var err error
		created, err = tx.CreateRequest(req)
		return err
	})
	if err != nil {
		return domain.Request{}, res, err
	}
	s.logger.Debug("request submitted",
		zap.Int("priority_key", created.PriorityKey),
		zap.Strings("preferences", created.Preferences))
	return created, res, nil
}

// WithdrawRequest removes a pending request before it is processed.
func (s *Service) WithdrawRequest(ctx context.Context, id string) (domain.Result, error) {
	start := time.Now()
	return s.run(ctx, "withdraw_request", start, func(tx domain.Transaction) error {
		return tx.DeleteRequest(id)
	})
}

// GetFacility reads one facility.
func (s *Service) GetFacility(id string) (domain.Facility, bool) {
	return s.store.GetFacility(id)
}

// ListFacilities reads all facilities in stable order.
func (s *Service) ListFacilities() []domain.Facility { return s.store.ListFacilities() }

// ListRequests reads the pending set in ascending key order.
func (s *Service) ListRequests() []domain.Request { return s.store.ListRequests() }

// ListAssignments reads all assignments in ascending key order.
func (s *Service) ListAssignments() []domain.Assignment { return s.store.ListAssignments() }

// ListHistoryRecords reads the audit trail in recording order.
func (s *Service) ListHistoryRecords() []domain.HistoryRecord { return s.store.ListHistoryRecords() }

func (s *Service) run(ctx context.Context, operation string, start time.Time, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.engine.Coordinator().Run(ctx, fn)
	s.metrics.ObserveOperation(ctx, operation, time.Since(start), err)
	return res, err
}
