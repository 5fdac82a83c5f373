package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/jobstate"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

func TestExportJobsXLSX(t *testing.T) {
	ctx := context.Background()
	db, err := repository.OpenSQLite("file:"+filepath.Join(t.TempDir(), "jobs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, repository.Migrate(ctx, db, nil))
	repo := repository.NewJobRepository(db, nil)

	ready, err := repo.CreateJob(ctx, entity.NewJob{Filename: "eicr.pdf", MimeType: "application/pdf"})
	require.NoError(t, err)
	require.NoError(t, repo.Claim(ctx, ready.ID, "w"))
	ocrOut := jobstate.OCROutput{Text: "ELECTRICAL INSTALLATION CONDITION REPORT", PageCount: 2, Engine: "native"}
	class := jobstate.Classification{DocType: "EICR", Confidence: 0.9, RuleSetVersion: "v1"}
	steps := []jobstate.Phase{
		jobstate.InExtract{OCR: ocrOut},
		jobstate.InSummarise{OCR: ocrOut, Class: class},
		jobstate.Ready{OCR: ocrOut, Class: class, AI: jobstate.AIOutput{
			Summary: []byte(`{"document_title":"EICR Flat 3","issuing_party":"Sparks Ltd",` +
				`"key_dates":[{"label":"Inspection","date":"2023-07-15"},{"label":"Next inspection","date":"2028-07-15"}]}`),
			Model: "m",
		}},
	}
	from := constants.JobStatusOCR
	for _, next := range steps {
		require.NoError(t, repo.Transition(ctx, ready.ID, from, next.Status(), jobstate.PatchFor(next)))
		from = next.Status()
	}

	failed, err := repo.CreateJob(ctx, entity.NewJob{Filename: "blank.png", MimeType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, repo.Claim(ctx, failed.ID, "w"))
	require.NoError(t, repo.Transition(ctx, failed.ID, constants.JobStatusOCR, constants.JobStatusFailed,
		jobstate.PatchFor(jobstate.Failed{Code: constants.ErrorCodeOCRExhausted, Message: "all engines exhausted"})))

	data, err := NewService(repo, nil).ExportJobsXLSX(ctx, entity.JobFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, jobHeaders, rows[0])

	byName := map[string][]string{}
	for _, r := range rows[1:] {
		byName[r[1]] = r
	}
	eicr := byName["eicr.pdf"]
	require.NotNil(t, eicr)
	assert.Equal(t, "READY", eicr[2])
	assert.Equal(t, "EICR", eicr[3])
	assert.Equal(t, "native", eicr[5])
	assert.Equal(t, "2", eicr[6])
	assert.Equal(t, "EICR Flat 3", eicr[7])
	assert.Equal(t, "Sparks Ltd", eicr[8])

	blank := byName["blank.png"]
	require.NotNil(t, blank)
	assert.Equal(t, "FAILED", blank[2])
	assert.Equal(t, "ocr_exhausted", blank[9])
	assert.Equal(t, "all engines exhausted", blank[10])

	dates, err := f.GetRows(keyDatesSheet)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, []string{ready.ID.String(), "eicr.pdf", "EICR", "Inspection", "2023-07-15"}, dates[1])
	assert.Equal(t, "2028-07-15", dates[2][4])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ééé…", truncate("éééééé", 4))
}
