package repository

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

const jobsTable = "intake_jobs"

// column names
const (
	colID                 = "id"
	colFilename           = "filename"
	colMimeType           = "mime_type"
	colSizeBytes          = "size_bytes"
	colPageCount          = "page_count"
	colStatus             = "status"
	colDocTypeGuess       = "doc_type_guess"
	colDocTypeConfidence  = "doc_type_confidence"
	colRuleSetVersion     = "rule_set_version"
	colOCREngine          = "ocr_engine"
	colBuildingID         = "building_id"
	colUnitID             = "unit_id"
	colErrorCode          = "error_code"
	colErrorMessage       = "error_message"
	colExtractedText      = "extracted_text"
	colSummary            = "summary"
	colAIModel            = "ai_model"
	colAIPromptTokens     = "ai_prompt_tokens"
	colAICompletionTokens = "ai_completion_tokens"
	colAILatencyMS        = "ai_latency_ms"
	colCancelledAt        = "cancelled_at"
	colClaimedBy          = "claimed_by"
	colClaimedAt          = "claimed_at"
	colCreatedAt          = "created_at"
	colUpdatedAt          = "updated_at"
)

var jobColumns = []string{
	colID, colFilename, colMimeType, colSizeBytes, colPageCount, colStatus,
	colDocTypeGuess, colDocTypeConfidence, colRuleSetVersion, colOCREngine,
	colBuildingID, colUnitID, colErrorCode, colErrorMessage, colExtractedText,
	colSummary, colAIModel, colAIPromptTokens, colAICompletionTokens, colAILatencyMS,
	colCancelledAt, colClaimedBy, colClaimedAt, colCreatedAt, colUpdatedAt,
}

// Tables returns the schema managed by Migrate.
func Tables() []*schema.Table {
	longText := int64(math.MaxInt32)
	idCol := &schema.Column{Name: colID, Type: field.TypeUUID}
	statusCol := &schema.Column{Name: colStatus, Type: field.TypeString, Size: 16}
	updatedCol := &schema.Column{Name: colUpdatedAt, Type: field.TypeTime}
	createdCol := &schema.Column{Name: colCreatedAt, Type: field.TypeTime}

	t := schema.NewTable(jobsTable).
		AddPrimary(idCol).
		AddColumn(&schema.Column{Name: colFilename, Type: field.TypeString, Size: 1024}).
		AddColumn(&schema.Column{Name: colMimeType, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colSizeBytes, Type: field.TypeInt64}).
		AddColumn(&schema.Column{Name: colPageCount, Type: field.TypeInt, Nullable: true}).
		AddColumn(statusCol).
		AddColumn(&schema.Column{Name: colDocTypeGuess, Type: field.TypeString, Size: 128, Nullable: true}).
		AddColumn(&schema.Column{Name: colDocTypeConfidence, Type: field.TypeFloat64, Nullable: true}).
		AddColumn(&schema.Column{Name: colRuleSetVersion, Type: field.TypeString, Size: 64, Nullable: true}).
		AddColumn(&schema.Column{Name: colOCREngine, Type: field.TypeString, Size: 64, Nullable: true}).
		AddColumn(&schema.Column{Name: colBuildingID, Type: field.TypeUUID, Nullable: true}).
		AddColumn(&schema.Column{Name: colUnitID, Type: field.TypeUUID, Nullable: true}).
		AddColumn(&schema.Column{Name: colErrorCode, Type: field.TypeString, Size: 32, Nullable: true}).
		AddColumn(&schema.Column{Name: colErrorMessage, Type: field.TypeString, Size: longText, Nullable: true}).
		AddColumn(&schema.Column{Name: colExtractedText, Type: field.TypeString, Size: longText, Nullable: true}).
		AddColumn(&schema.Column{Name: colSummary, Type: field.TypeJSON, Nullable: true}).
		AddColumn(&schema.Column{Name: colAIModel, Type: field.TypeString, Size: 128, Nullable: true}).
		AddColumn(&schema.Column{Name: colAIPromptTokens, Type: field.TypeInt, Nullable: true}).
		AddColumn(&schema.Column{Name: colAICompletionTokens, Type: field.TypeInt, Nullable: true}).
		AddColumn(&schema.Column{Name: colAILatencyMS, Type: field.TypeInt64, Nullable: true}).
		AddColumn(&schema.Column{Name: colCancelledAt, Type: field.TypeTime, Nullable: true}).
		AddColumn(&schema.Column{Name: colClaimedBy, Type: field.TypeString, Size: 255, Nullable: true}).
		AddColumn(&schema.Column{Name: colClaimedAt, Type: field.TypeTime, Nullable: true}).
		AddColumn(createdCol).
		AddColumn(updatedCol)

	t.AddIndex("intake_jobs_status_updated_at", false, []string{colStatus, colUpdatedAt})
	t.AddIndex("intake_jobs_created_at", false, []string{colCreatedAt})
	t.AddIndex("intake_jobs_building_id", false, []string{colBuildingID})
	return []*schema.Table{t}
}

// Migrate creates or updates the job table.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(db.Driver)
	if err != nil {
		return fmt.Errorf("%w: migrate init: %w", common.ErrDatabase, err)
	}
	if err := m.Create(ctx, Tables()...); err != nil {
		logger.Error("db.migrate.fail", "err", err)
		return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
	}
	logger.Info("db.migrate.ok", "table", jobsTable)
	return nil
}
