package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// Job is one row of intake_jobs, for data transfer between layers.
type Job struct {
	ID                 uuid.UUID            `json:"id"`
	Filename           string               `json:"filename"`
	MimeType           string               `json:"mime_type"`
	SizeBytes          int64                `json:"size_bytes"`
	PageCount          *int                 `json:"page_count,omitempty"`
	Status             constants.JobStatus  `json:"status"`
	DocTypeGuess       *string              `json:"doc_type_guess,omitempty"`
	DocTypeConfidence  *float64             `json:"doc_type_confidence,omitempty"`
	RuleSetVersion     *string              `json:"rule_set_version,omitempty"`
	OCREngine          *string              `json:"ocr_engine,omitempty"`
	BuildingID         *uuid.UUID           `json:"building_id,omitempty"`
	UnitID             *uuid.UUID           `json:"unit_id,omitempty"`
	ErrorCode          *constants.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage       *string              `json:"error_message,omitempty"`
	ExtractedText      *string              `json:"extracted_text,omitempty"`
	Summary            json.RawMessage      `json:"summary,omitempty"`
	AIModel            *string              `json:"ai_model,omitempty"`
	AIPromptTokens     *int                 `json:"ai_prompt_tokens,omitempty"`
	AICompletionTokens *int                 `json:"ai_completion_tokens,omitempty"`
	AILatencyMS        *int64               `json:"ai_latency_ms,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	ClaimedBy          *string              `json:"claimed_by,omitempty"`
	ClaimedAt          *time.Time           `json:"claimed_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func (j *Job) IsCancelled() bool { return j.CancelledAt != nil }

// NewJob is what an upload handler supplies when it records an upload.
type NewJob struct {
	ID         uuid.UUID // optional; generated when Nil
	Filename   string
	MimeType   string
	SizeBytes  int64
	BuildingID *uuid.UUID
	UnitID     *uuid.UUID
}

// JobPatch is a partial update; nil fields are left untouched.
type JobPatch struct {
	Status             *constants.JobStatus
	PageCount          *int
	DocTypeGuess       *string
	DocTypeConfidence  *float64
	RuleSetVersion     *string
	OCREngine          *string
	ErrorCode          *constants.ErrorCode
	ErrorMessage       *string
	ExtractedText      *string
	Summary            json.RawMessage
	AIModel            *string
	AIPromptTokens     *int
	AICompletionTokens *int
	AILatencyMS        *int64
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Statuses   []constants.JobStatus
	BuildingID *uuid.UUID
	Since      *time.Time
	Limit      int
}
