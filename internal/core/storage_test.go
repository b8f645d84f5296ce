package core

import (
	"path/filepath"
	"testing"

	"plazacore/internal/infra/persistence/memory"
	"plazacore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDefaultsToMemory(t *testing.T) {
	t.Setenv(EnvStorageDriver, "")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("want memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plaza.db")
	t.Setenv(EnvStorageDriver, string(StorageDriverSQLite))
	t.Setenv(EnvSQLitePath, path)

	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("want sqlite store, got %T", store)
	}
	defer s.Close()
	if s.Path() != path {
		t.Fatalf("want path %s, got %s", path, s.Path())
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv(EnvStorageDriver, "etcd")
	if _, err := OpenPersistentStore(NewDefaultRulesEngine()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenPersistentStoreTrimsDriverName(t *testing.T) {
	t.Setenv(EnvStorageDriver, "  MEMORY ")
	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("want memory store, got %T", store)
	}
}
