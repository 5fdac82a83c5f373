package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/blob"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

// ErrUnsupportedExt is returned for files whose extension no engine accepts.
var ErrUnsupportedExt = errors.New("unsupported or missing extension")

// DefaultMaxFileSize bounds a single upload.
const DefaultMaxFileSize = 64 << 20

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	jobs        repository.JobRepository
	blobs       blob.Store
	logger      *slog.Logger
	concurrency int
	maxSize     int64
}

type FSOption func(*FSIngestor)

// WithConcurrency bounds how many files IngestDirectory submits at once.
func WithConcurrency(n int) FSOption {
	return func(i *FSIngestor) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

func WithMaxFileSize(n int64) FSOption {
	return func(i *FSIngestor) {
		if n > 0 {
			i.maxSize = n
		}
	}
}

func NewFSIngestor(jobs repository.JobRepository, blobs blob.Store, logger *slog.Logger, opts ...FSOption) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &FSIngestor{
		jobs:        jobs,
		blobs:       blobs,
		logger:      logger,
		concurrency: 4,
		maxSize:     DefaultMaxFileSize,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// IngestPath stores the file under a fresh job id, then creates the QUEUED
// row. The blob is written first so no worker can claim a job whose file is
// missing; it is removed again when the row cannot be created.
func (i *FSIngestor) IngestPath(ctx context.Context, path string, link Link) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return out, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return out, fmt.Errorf("%s is a directory: %w", abs, common.ErrInvalidInput)
	}
	if info.Size() > i.maxSize {
		return out, fmt.Errorf("%s is %d bytes, limit %d: %w", abs, info.Size(), i.maxSize, common.ErrInvalidInput)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)

	id := uuid.New()
	mimeType := constants.MIMEForExt(ext)
	key := blob.KeyFor(id)
	if err := i.blobs.Put(ctx, key, data, mimeType); err != nil {
		i.logger.Error("ingest.blob.put.fail", "path", abs, "err", err)
		return out, common.StorageError("blob put "+key, err)
	}

	job, err := i.jobs.CreateJob(ctx, entity.NewJob{
		ID:         id,
		Filename:   filepath.Base(abs),
		MimeType:   mimeType,
		SizeBytes:  int64(len(data)),
		BuildingID: link.BuildingID,
		UnitID:     link.UnitID,
	})
	if err != nil {
		if derr := i.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			i.logger.Warn("ingest.blob.cleanup.fail", "key", key, "err", derr)
		}
		return out, err
	}

	out.JobID = job.ID
	out.Format = constants.MapExtToFormat(ext)
	out.MimeType = mimeType
	out.SizeBytes = job.SizeBytes
	out.HashHex = hex.EncodeToString(sum[:])
	i.logger.Info("ingest.ok", "job_id", job.ID, "path", abs, "format", out.Format, "size", out.SizeBytes)
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and submits
// every allowed file. Results follow walk order.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool, link Link) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var (
		paths []string
		stats DirStats
		walk  []IngestionResult
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Scanned++
			walk = append(walk, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return walk, stats, fmt.Errorf("walk: %w", err)
	}

	results := make([]IngestionResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, p := range paths {
		idx, p := idx, p
		g.Go(func() error {
			r, err := i.IngestPath(gctx, p, link)
			if err != nil {
				r.Err = err.Error()
				if errors.Is(err, context.Canceled) {
					return err
				}
			}
			results[idx] = r
			return nil
		})
	}
	gerr := g.Wait()

	for _, r := range results {
		switch {
		case r.Err != "":
			stats.Failed++
		case r.JobID != uuid.Nil:
			stats.Succeeded++
		}
	}
	results = append(walk, results...)
	i.logger.Info("ingest.dir.done", "root", root, "scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "failed", stats.Failed)
	return results, stats, gerr
}
