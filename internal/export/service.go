package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/llm"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

const (
	jobsSheet     = "Jobs"
	keyDatesSheet = "Key Dates"
)

var jobHeaders = []string{
	"Job ID",
	"Filename",
	"Status",
	"Document Type",
	"Confidence",
	"OCR Engine",
	"Pages",
	"Title",
	"Issuing Party",
	"Error Code",
	"Error",
	"Building",
	"Created",
	"Updated",
}

var keyDateHeaders = []string{"Job ID", "Filename", "Document Type", "Label", "Date"}

// Service produces XLSX reports over the job table.
type Service struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportJobsXLSX returns a workbook with one row per job on the Jobs sheet and
// one row per extracted key date on the Key Dates sheet.
func (s *Service) ExportJobsXLSX(ctx context.Context, filter entity.JobFilter) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(keyDatesSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(jobsSheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, jobsSheet, 1, toAny(jobHeaders)...)
	writeRow(f, keyDatesSheet, 1, toAny(keyDateHeaders)...)

	dateRow := 2
	for i, j := range jobs {
		summary := decodeSummary(j, s.logger)
		building := ""
		if j.BuildingID != nil {
			building = j.BuildingID.String()
		}
		writeRow(f, jobsSheet, i+2,
			j.ID.String(),
			j.Filename,
			string(j.Status),
			deref(j.DocTypeGuess),
			derefFloat(j.DocTypeConfidence),
			deref(j.OCREngine),
			derefInt(j.PageCount),
			summary.DocumentTitle,
			summary.IssuingParty,
			derefCode(j),
			truncate(deref(j.ErrorMessage), 140),
			building,
			j.CreatedAt.UTC().Format(time.RFC3339),
			j.UpdatedAt.UTC().Format(time.RFC3339),
		)
		for _, kd := range summary.KeyDates {
			writeRow(f, keyDatesSheet, dateRow, j.ID.String(), j.Filename, deref(j.DocTypeGuess), kd.Label, kd.Date)
			dateRow++
		}
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(jobsSheet, "B", "B", 32) // filename
	_ = f.SetColWidth(jobsSheet, "C", "G", 14)
	_ = f.SetColWidth(jobsSheet, "H", "I", 36)
	_ = f.SetColWidth(jobsSheet, "K", "K", 48) // error
	_ = f.SetColWidth(jobsSheet, "L", "N", 24)
	_ = f.SetColWidth(keyDatesSheet, "A", "A", 38)
	_ = f.SetColWidth(keyDatesSheet, "B", "D", 28)
	_ = f.SetColWidth(keyDatesSheet, "E", "E", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"key_dates", dateRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// decodeSummary returns the zero result for jobs that are not READY.
func decodeSummary(j *entity.Job, logger *slog.Logger) llm.StructuredResult {
	var r llm.StructuredResult
	if len(j.Summary) == 0 {
		return r
	}
	if err := json.Unmarshal(j.Summary, &r); err != nil {
		logger.Warn("export.summary.decode_fail", "job_id", j.ID, "err", err)
	}
	return r
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) any {
	if n == nil {
		return ""
	}
	return *n
}

func derefFloat(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

func derefCode(j *entity.Job) string {
	if j.ErrorCode == nil {
		return ""
	}
	return string(*j.ErrorCode)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if n <= 0 || len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
