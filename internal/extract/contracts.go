// Package extract holds the contracts between the orchestrator and its
// stages, and loads a job's upload for the first of them.
package extract

import (
	"context"

	"github.com/joseph-ayodele/doc-intake/internal/classify"
	"github.com/joseph-ayodele/doc-intake/internal/llm"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
)

// TextExtractor is stage 1: file -> text.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc ocr.Document) (ocr.Result, error)
}

// Classifier is stage 2: text -> document type.
type Classifier interface {
	Classify(pages []classify.Page) classify.Result
}

// FieldExtractor is stage 3: text -> structured fields. It never fails; an
// unusable answer comes back as llm.DefaultResult.
type FieldExtractor interface {
	ExtractStructured(ctx context.Context, text, docType string, hints llm.Hints) llm.Extraction
}

var (
	_ TextExtractor  = (*ocr.Selector)(nil)
	_ Classifier     = (*classify.Classifier)(nil)
	_ FieldExtractor = (*llm.Adapter)(nil)
)
