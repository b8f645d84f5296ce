// Package blob exposes the blob storage abstraction used for history
// archival. Other packages depend on blob.Store; the infra-backed
// implementations are wrapped here and must not be imported directly.
package blob

import (
	fsstore "plazacore/internal/infra/blob/fs"
	memorystore "plazacore/internal/infra/blob/memory"
	s3store "plazacore/internal/infra/blob/s3"

	"plazacore/internal/blob/core"
)

type (
	// Store aliases the core blob store contract.
	Store = core.Store
	// Driver aliases the backend driver identifier.
	Driver = core.Driver
	// PutOptions aliases optional Put parameters.
	PutOptions = core.PutOptions
	// Info aliases stored blob metadata.
	Info = core.Info
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound aliases the sentinel returned for missing blobs.
var ErrNotFound = core.ErrNotFound

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewS3Mock returns an S3 store backed by an in-memory fake transport.
func NewS3Mock() Store { return s3store.NewMockForTests() }
