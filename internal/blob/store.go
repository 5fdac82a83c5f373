// Package blob stores uploaded files under their job id.
package blob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

// Store is the raw-file store shared by the upload handler and the workers.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// KeyFor is the object key the upload handler writes a job's file under.
func KeyFor(jobID uuid.UUID) string {
	return jobID.String()
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg common.BlobConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "fs":
		logger.Info("blob.store", "backend", "fs", "dir", cfg.Dir)
		return NewFSStore(cfg.Dir)
	case "s3":
		logger.Info("blob.store", "backend", "s3", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown blob backend %q", common.ErrInvalidInput, cfg.Backend)
	}
}
