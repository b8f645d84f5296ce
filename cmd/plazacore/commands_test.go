package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	payload := `[
		{"priority_key": 2, "preferences": ["f1", "f2"], "submitter": "clerk-1"},
		{"priority_key": 1, "preferences": ["f2"]}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	requests, err := readBatch(path)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("want 2 requests, got %d", len(requests))
	}
	if requests[0].PriorityKey != 2 || requests[0].Submitter != "clerk-1" {
		t.Fatalf("unexpected first request %+v", requests[0])
	}
	if len(requests[1].Preferences) != 1 || requests[1].Preferences[0] != "f2" {
		t.Fatalf("unexpected preferences %+v", requests[1])
	}
}

func TestReadBatchRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readBatch(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{
		"facilities":  false,
		"load":        false,
		"process":     false,
		"process-one": false,
		"rebalance":   false,
		"dedupe":      false,
		"history":     false,
		"watch":       false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}
