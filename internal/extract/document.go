package extract

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/doc-intake/internal/blob"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
)

// BlobDocuments reads a job's upload from the blob store.
type BlobDocuments struct {
	store  blob.Store
	logger *slog.Logger
}

func NewBlobDocuments(store blob.Store, logger *slog.Logger) *BlobDocuments {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobDocuments{store: store, logger: logger}
}

// Load returns the upload as an ocr.Document. Failures wrap common.ErrStorage,
// missing files included.
func (d *BlobDocuments) Load(ctx context.Context, job *entity.Job) (ocr.Document, error) {
	key := blob.KeyFor(job.ID)
	data, err := d.store.Get(ctx, key)
	if err != nil {
		return ocr.Document{}, common.StorageError("blob get "+key, err)
	}
	if job.SizeBytes > 0 && int64(len(data)) != job.SizeBytes {
		d.logger.Warn("extract.blob.size_mismatch", "job_id", job.ID, "expected", job.SizeBytes, "got", len(data))
	}
	doc := ocr.NewDocument(job.Filename, job.MimeType, data)
	if doc.Format == "" {
		// no engine supports it; the selector records every attempt as skipped
		d.logger.Warn("extract.format.unknown", "job_id", job.ID, "filename", job.Filename, "mime", job.MimeType)
	}
	return doc, nil
}
