package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	blobcore "plazacore/internal/blob/core"
)

func TestPutRejectsTraversalKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"../escape", "a/../../b", "/absolute"} {
		if _, err := s.Put(ctx, key, strings.NewReader("v"), blobcore.PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestPutWritesMetaSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := s.Put(context.Background(), "history/doc.json", strings.NewReader("{}"), blobcore.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatalf("etag not computed")
	}
	if _, err := os.Stat(filepath.Join(root, "history", "doc.json.meta")); err != nil {
		t.Fatalf("meta sidecar missing: %v", err)
	}
}

func TestDriverIdentity(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != blobcore.DriverFilesystem {
		t.Fatalf("unexpected driver %q", s.Driver())
	}
}
