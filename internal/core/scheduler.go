package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"plazacore/pkg/domain"
)

// Scheduler runs incremental processing passes on a fixed interval until
// the context is cancelled. Pass errors are logged and the loop continues,
// except for infrastructure failures which stop it.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler constructs a scheduler driving engine every interval.
func NewScheduler(engine *Engine, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, executing ProcessPending each tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			summary, err := s.engine.ProcessPending(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrUnavailable) {
					return err
				}
				s.logger.Warn("processing pass failed", zap.Error(err))
				continue
			}
			if summary.Processed > 0 {
				s.logger.Info("processing pass complete",
					zap.Int("processed", summary.Processed),
					zap.Int("assigned", summary.Assigned),
					zap.Int("unassignable", summary.Unassignable))
			}
		}
	}
}
