// Package app wires configuration into the components both binaries share.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/doc-intake/internal/blob"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
	"github.com/joseph-ayodele/doc-intake/internal/rules"
)

// Storage is the job table plus the blob store.
type Storage struct {
	DB    *repository.DB
	Jobs  repository.JobRepository
	Blobs blob.Store

	logger *slog.Logger
}

// OpenStorage connects to the database, migrates it when configured to, and
// opens the blob store.
func OpenStorage(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.HealthCheck(ctx, cfg.Database.DialTimeout, logger); err != nil {
		db.Close(logger)
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db, logger); err != nil {
			db.Close(logger)
			return nil, err
		}
	}
	blobs, err := blob.New(ctx, cfg.Blob, logger)
	if err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &Storage{
		DB:     db,
		Jobs:   repository.NewJobRepository(db, logger),
		Blobs:  blobs,
		logger: logger,
	}, nil
}

func (s *Storage) Close() {
	if s != nil {
		s.DB.Close(s.logger)
	}
}

// LoadRules reads the rule set at path, or the built-in one when path is empty.
func LoadRules(path string, logger *slog.Logger) (*rules.RuleSet, error) {
	if path == "" {
		return rules.Default(logger)
	}
	return rules.LoadFile(path, logger)
}

// ReloadRules re-reads path into store. An unchanged version is rejected and
// the active set stays in place.
func ReloadRules(store *rules.Store, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return fmt.Errorf("%w: no RULES_FILE configured", common.ErrInvalidInput)
	}
	rs, err := rules.LoadFile(path, logger)
	if err != nil {
		return err
	}
	old := store.Current().Version
	if err := store.Replace(rs); err != nil {
		return err
	}
	logger.Info("rules.reload.ok", "from", old, "to", rs.Version, "types", len(rs.TypeNames()))
	return nil
}

// NewSelector builds the configured OCR engines behind a Selector.
func NewSelector(ctx context.Context, cfg common.OCRConfig, logger *slog.Logger) (*ocr.Selector, error) {
	engines, err := ocr.BuildEngines(ctx, cfg, ocr.ExecRunner{Logger: logger}, logger)
	if err != nil {
		return nil, err
	}
	return ocr.NewSelector(engines, logger,
		ocr.WithMinChars(cfg.MinChars),
		ocr.WithEngineTimeout(cfg.EngineTimeout),
	), nil
}

// RetryConfig turns the worker's storage retry settings into a policy.
func RetryConfig(cfg common.WorkerConfig) common.RetryConfig {
	rc := common.DefaultRetryConfig()
	if cfg.StorageRetries > 0 {
		rc.MaxAttempts = cfg.StorageRetries
	}
	if cfg.StorageBackoff > 0 {
		rc.InitialBackoff = cfg.StorageBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}
