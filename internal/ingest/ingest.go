// Package ingest is the development stand-in for the upload handler: it
// stores a local file in the blob store and creates its QUEUED job row.
package ingest

import (
	"context"

	"github.com/google/uuid"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath string
	JobID      uuid.UUID
	Format     string
	MimeType   string
	SizeBytes  int64
	HashHex    string
	Err        string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// Link optionally ties new jobs to a building and unit.
type Link struct {
	BuildingID *uuid.UUID
	UnitID     *uuid.UUID
}

// Ingestor is the behavior the CLI depends on.
type Ingestor interface {
	// IngestPath submits a single file.
	IngestPath(ctx context.Context, path string, link Link) (IngestionResult, error)
	// IngestDirectory submits all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool, link Link) ([]IngestionResult, DirStats, error)
}
