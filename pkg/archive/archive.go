package archive

import (
	"context"
	"fmt"
	"time"
)

// Archiver stores an export artifact durably before the source rows
// are deleted.
type Archiver interface {
	Store(ctx context.Context, key string, data []byte) error
}

// Backend selects the archive implementation.
const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Config holds archive backend settings.
type Config struct {
	Backend string

	// S3 settings. Endpoint and path style exist for MinIO-style
	// deployments; empty access keys fall back to the default AWS
	// credential chain.
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// LocalDir is the root directory for the local backend.
	LocalDir string
}

// New creates the archiver named by the config.
func New(cfg Config) (Archiver, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3(cfg)
	case BackendLocal:
		return NewLocal(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown archive backend: %q", cfg.Backend)
	}
}

// Key builds the object key for an archive artifact: one dated JSON
// file per retention sweep, partitioned by year and month so bucket
// listings stay navigable.
func Key(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("audit/%04d/%02d/audit-%s.json",
		now.Year(), now.Month(), now.Format("2006-01-02T15-04-05Z"))
}
