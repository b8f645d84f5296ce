package core

import (
	"fmt"
	"os"
	"strings"

	"plazacore/internal/infra/persistence/memory"
	"plazacore/internal/infra/persistence/postgres"
	"plazacore/internal/infra/persistence/sqlite"
	"plazacore/pkg/domain"
)

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverSQLite   StorageDriver = "sqlite"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Environment variables consumed by OpenPersistentStore.
const (
	EnvStorageDriver = "PLAZACORE_STORAGE_DRIVER"
	EnvSQLitePath    = "PLAZACORE_SQLITE_PATH"
	EnvPostgresDSN   = "PLAZACORE_POSTGRES_DSN"
)

// NewMemoryStore constructs the in-memory store used by tests and ephemeral
// deployments.
func NewMemoryStore(engine *domain.RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}

// NewSQLiteStore constructs a store persisted to a local sqlite file.
func NewSQLiteStore(path string, engine *domain.RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}

// NewPostgresStore constructs a store persisted to PostgreSQL.
func NewPostgresStore(dsn string, engine *domain.RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine)
}

// OpenPersistentStore selects and opens a persistence backend from the
// environment. PLAZACORE_STORAGE_DRIVER picks the driver (memory when
// unset); sqlite reads PLAZACORE_SQLITE_PATH and postgres reads
// PLAZACORE_POSTGRES_DSN.
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvStorageDriver))))
	switch driver {
	case StorageDriverMemory, "":
		return NewMemoryStore(engine), nil
	case StorageDriverSQLite:
		return NewSQLiteStore(os.Getenv(EnvSQLitePath), engine)
	case StorageDriverPostgres:
		return NewPostgresStore(os.Getenv(EnvPostgresDSN), engine)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
