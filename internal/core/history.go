package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"plazacore/internal/blob"
	"plazacore/pkg/domain"
)

// HistoryRecorder receives the terminal outcome of every resolved request.
// Recording is best effort: engine operations succeed even when the
// recorder fails, and callers log rather than propagate recorder errors.
type HistoryRecorder interface {
	Record(ctx context.Context, priorityKey int, outcome domain.OutcomeKind, message string) error
}

// NoopHistoryRecorder discards outcomes.
type NoopHistoryRecorder struct{}

// Record implements HistoryRecorder.
func (NoopHistoryRecorder) Record(context.Context, int, domain.OutcomeKind, string) error {
	return nil
}

// StoreHistoryRecorder appends outcomes to the store's history set. Writes
// go through the coordinator so a history append contends like any other
// commit.
type StoreHistoryRecorder struct {
	coord *Coordinator
	clock Clock
}

// NewStoreHistoryRecorder constructs a recorder writing through coord.
func NewStoreHistoryRecorder(coord *Coordinator, clock Clock) *StoreHistoryRecorder {
	if clock == nil {
		clock = systemClock()
	}
	return &StoreHistoryRecorder{coord: coord, clock: clock}
}

// Record implements HistoryRecorder.
func (r *StoreHistoryRecorder) Record(ctx context.Context, priorityKey int, outcome domain.OutcomeKind, message string) error {
	_, err := r.coord.Run(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateHistoryRecord(domain.HistoryRecord{
			PriorityKey: priorityKey,
			Outcome:     outcome,
			Message:     message,
			RecordedAt:  r.clock.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("record history for key %d: %w", priorityKey, err)
	}
	return nil
}

// ArchivingHistoryRecorder forwards to an inner recorder and additionally
// writes each outcome as a JSON document to a blob store, giving the audit
// trail durability independent of the primary store.
type ArchivingHistoryRecorder struct {
	inner HistoryRecorder
	blobs blob.Store
	clock Clock
	seq   atomic.Uint64
}

// NewArchivingHistoryRecorder wraps inner with blob archival.
func NewArchivingHistoryRecorder(inner HistoryRecorder, blobs blob.Store, clock Clock) *ArchivingHistoryRecorder {
	if inner == nil {
		inner = NoopHistoryRecorder{}
	}
	if clock == nil {
		clock = systemClock()
	}
	return &ArchivingHistoryRecorder{inner: inner, blobs: blobs, clock: clock}
}

type archivedOutcome struct {
	PriorityKey int       `json:"priority_key"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Record implements HistoryRecorder.
func (r *ArchivingHistoryRecorder) Record(ctx context.Context, priorityKey int, outcome domain.OutcomeKind, message string) error {
	if err := r.inner.Record(ctx, priorityKey, outcome, message); err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	doc := archivedOutcome{
		PriorityKey: priorityKey,
		Outcome:     string(outcome),
		Message:     message,
		RecordedAt:  now,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal history archive for key %d: %w", priorityKey, err)
	}
	key := fmt.Sprintf("history/%s-%06d.json", now.Format("20060102T150405.000000000Z"), r.seq.Add(1))
	_, err = r.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("archive history for key %d: %w", priorityKey, err)
	}
	return nil
}
