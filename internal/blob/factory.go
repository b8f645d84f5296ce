package blob

import (
	"context"
	"fmt"
	"os"

	s3store "plazacore/internal/infra/blob/s3"
)

// Environment variables consumed by Open.
const (
	EnvBlobDriver = "PLAZACORE_BLOB_DRIVER"
	EnvBlobFSRoot = "PLAZACORE_BLOB_FS_ROOT"
)

// Open selects a blob.Store implementation using environment variables.
//
//	PLAZACORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	PLAZACORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv(EnvBlobDriver)
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv(EnvBlobFSRoot)
		return NewFilesystem(root)
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
