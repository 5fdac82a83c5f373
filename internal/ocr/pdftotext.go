package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// PdftotextEngine uses poppler's pdftotext, which often copes with PDFs whose
// text layer the native reader cannot decode.
type PdftotextEngine struct {
	bin      string
	maxPages int
	runner   Runner
}

func NewPdftotextEngine(bin string, maxPages int, runner Runner) *PdftotextEngine {
	if bin == "" {
		bin = "pdftotext"
	}
	return &PdftotextEngine{bin: bin, maxPages: maxPages, runner: runner}
}

func (e *PdftotextEngine) Name() string { return "pdftotext" }

func (e *PdftotextEngine) Supports(doc Document) bool { return doc.Format == constants.PDF }

func (e *PdftotextEngine) Extract(ctx context.Context, doc Document) (Output, error) {
	path, cleanup, err := spill(doc, "intake-pdf-*.pdf")
	if err != nil {
		return Output{}, err
	}
	defer cleanup()

	// pdftotext -layout -enc UTF-8 -eol unix [-l N] <path> -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.maxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.maxPages))
	}
	args = append(args, path, "-")
	out, errb, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		return Output{Warnings: stderrWarning(errb)}, fmt.Errorf("pdftotext: %w", err)
	}
	text := strings.TrimRight(string(out), "\f")
	return Output{Text: text, Pages: 1 + strings.Count(text, "\f")}, nil
}

// spill writes the document to a temp file for command-line tools.
func spill(doc Document, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(doc.Data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func stderrWarning(errb []byte) []string {
	s := strings.TrimSpace(string(errb))
	if s == "" {
		return nil
	}
	return []string{truncate(s, 1<<10)}
}
