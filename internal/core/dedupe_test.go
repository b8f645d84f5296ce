package core

import (
	"testing"
	"time"

	"plazacore/pkg/domain"
)

func TestFingerprintUsesSubmissionIdentity(t *testing.T) {
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	a := domain.Request{PriorityKey: 1, Submitter: "clerk-1", SubmittedAt: at}
	b := domain.Request{PriorityKey: 2, Submitter: "clerk-1", SubmittedAt: at}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("same submission must share a fingerprint")
	}
	c := domain.Request{PriorityKey: 2, Submitter: "clerk-2", SubmittedAt: at}
	if Fingerprint(b) == Fingerprint(c) {
		t.Fatalf("different submitters must differ")
	}
}

func TestFingerprintFallsBackToPriorityKey(t *testing.T) {
	a := domain.Request{PriorityKey: 7}
	b := domain.Request{PriorityKey: 7}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("anonymous requests dedupe on key")
	}
	if Fingerprint(a) == Fingerprint(domain.Request{PriorityKey: 8}) {
		t.Fatalf("different keys must differ")
	}
}

func TestScanKeepsMostRecentlyCreated(t *testing.T) {
	guard := NewDeduplicationGuard()
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	older := domain.Request{
		Base:        domain.Base{ID: "old", CreatedAt: at},
		PriorityKey: 1, Submitter: "clerk-1", SubmittedAt: at,
	}
	newer := domain.Request{
		Base:        domain.Base{ID: "new", CreatedAt: at.Add(time.Minute)},
		PriorityKey: 2, Submitter: "clerk-1", SubmittedAt: at,
	}
	duplicates, survivors := guard.Scan([]domain.Request{older, newer})
	if len(duplicates) != 1 || duplicates[0].ID != "old" {
		t.Fatalf("expected older copy flagged, got %+v", duplicates)
	}
	if len(survivors) != 1 || survivors[0].ID != "new" {
		t.Fatalf("expected newer copy kept, got %+v", survivors)
	}
}

func TestScanFlagsTombstonedFingerprints(t *testing.T) {
	guard := NewDeduplicationGuard()
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	req := domain.Request{PriorityKey: 5, Submitter: "clerk-1", SubmittedAt: at}
	guard.Tombstone(Fingerprint(req), "", at)

	duplicates, survivors := guard.Scan([]domain.Request{req})
	if len(duplicates) != 1 || len(survivors) != 0 {
		t.Fatalf("tombstoned request must be a duplicate, got %d/%d", len(duplicates), len(survivors))
	}
	if !guard.IsDuplicate(req) {
		t.Fatalf("IsDuplicate must match the tombstone")
	}
}

func TestTombstoneSparesRecordedSurvivor(t *testing.T) {
	guard := NewDeduplicationGuard()
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	survivor := domain.Request{Base: domain.Base{ID: "keep"}, PriorityKey: 1, Submitter: "clerk-1", SubmittedAt: at}
	copycat := domain.Request{Base: domain.Base{ID: "copy"}, PriorityKey: 2, Submitter: "clerk-1", SubmittedAt: at}
	guard.Tombstone(Fingerprint(survivor), survivor.ID, at)

	if guard.IsDuplicate(survivor) {
		t.Fatalf("survivor must not match its own tombstone")
	}
	if !guard.IsDuplicate(copycat) {
		t.Fatalf("other copies must match the tombstone")
	}

	duplicates, survivors := guard.Scan([]domain.Request{survivor, copycat})
	if len(duplicates) != 1 || duplicates[0].ID != "copy" {
		t.Fatalf("expected only the copy flagged, got %+v", duplicates)
	}
	if len(survivors) != 1 || survivors[0].ID != "keep" {
		t.Fatalf("expected survivor kept, got %+v", survivors)
	}
}

func TestScanDoesNotTombstone(t *testing.T) {
	guard := NewDeduplicationGuard()
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	a := domain.Request{Base: domain.Base{ID: "a", CreatedAt: at}, PriorityKey: 1, Submitter: "x", SubmittedAt: at}
	b := domain.Request{Base: domain.Base{ID: "b", CreatedAt: at.Add(time.Second)}, PriorityKey: 2, Submitter: "x", SubmittedAt: at}
	guard.Scan([]domain.Request{a, b})
	if guard.TombstoneCount() != 0 {
		t.Fatalf("scan must not record tombstones, got %d", guard.TombstoneCount())
	}
}
