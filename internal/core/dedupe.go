package core

import (
	"fmt"
	"sync"
	"time"

	"plazacore/pkg/domain"
)

// DeduplicationGuard identifies requests that denote the same underlying
// submission. Fingerprints of removed duplicates are tombstoned so a copy
// resurrected by a stale writer is recognized and deleted again instead of
// re-entering the pending set. Each tombstone remembers which record
// survived the removal, so the survivor itself is never treated as a
// duplicate while it waits to be processed.
type DeduplicationGuard struct {
	mu         sync.Mutex
	tombstones map[string]tombstone
}

type tombstone struct {
	survivorID string
	removedAt  time.Time
}

// NewDeduplicationGuard constructs a guard with an empty tombstone set.
func NewDeduplicationGuard() *DeduplicationGuard {
	return &DeduplicationGuard{tombstones: map[string]tombstone{}}
}

// Fingerprint derives the duplicate-detection identity of a request from
// its submission metadata. Requests without a submitter fall back to the
// priority key, which is unique by construction.
func Fingerprint(req domain.Request) string {
	if req.Submitter != "" {
		return req.Submitter + "|" + req.SubmittedAt.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("key:%d", req.PriorityKey)
}

// IsDuplicate reports whether the request matches a tombstoned fingerprint
// and is not the recorded survivor of that removal.
func (g *DeduplicationGuard) IsDuplicate(req domain.Request) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.matches(req)
}

func (g *DeduplicationGuard) matches(req domain.Request) bool {
	ts, ok := g.tombstones[Fingerprint(req)]
	if !ok {
		return false
	}
	return ts.survivorID == "" || req.ID != ts.survivorID
}

// Tombstone marks a fingerprint as removed. survivorID names the record
// that was kept; an empty survivorID keeps a previously recorded one, or
// marks every copy as duplicate when none was ever recorded.
func (g *DeduplicationGuard) Tombstone(fingerprint, survivorID string, removedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if survivorID == "" {
		if existing, ok := g.tombstones[fingerprint]; ok {
			survivorID = existing.survivorID
		}
	}
	g.tombstones[fingerprint] = tombstone{survivorID: survivorID, removedAt: removedAt}
}

// TombstoneCount reports the number of recorded tombstones.
func (g *DeduplicationGuard) TombstoneCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tombstones)
}

// Scan partitions the pending set into duplicates and survivors. Within a
// fingerprint group the most recently created request survives; requests
// matching an existing tombstone are duplicates regardless of grouping.
// Scan does not record tombstones itself, callers tombstone after the
// duplicates are actually deleted.
func (g *DeduplicationGuard) Scan(requests []domain.Request) (duplicates, survivors []domain.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	groups := map[string][]domain.Request{}
	for _, req := range requests {
		if g.matches(req) {
			duplicates = append(duplicates, req)
			continue
		}
		groups[Fingerprint(req)] = append(groups[Fingerprint(req)], req)
	}
	for _, group := range groups {
		keep := 0
		for i := 1; i < len(group); i++ {
			if group[i].CreatedAt.After(group[keep].CreatedAt) ||
				(group[i].CreatedAt.Equal(group[keep].CreatedAt) && group[i].ID > group[keep].ID) {
				keep = i
			}
		}
		for i, req := range group {
			if i == keep {
				survivors = append(survivors, req)
			} else {
				duplicates = append(duplicates, req)
			}
		}
	}
	return duplicates, survivors
}
