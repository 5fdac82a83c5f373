package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// NativeEngine reads text that is already in the file: PDF text layers,
// Office documents, HTML, e-mail and plain text. It never touches the network
// and never rasterises.
type NativeEngine struct {
	maxPages int
	logger   *slog.Logger
}

func NewNativeEngine(maxPages int, logger *slog.Logger) *NativeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeEngine{maxPages: maxPages, logger: logger}
}

func (e *NativeEngine) Name() string { return "native" }

func (e *NativeEngine) Supports(doc Document) bool {
	switch doc.Format {
	case constants.PDF, constants.DOCX, constants.XLSX, constants.HTML, constants.EML, constants.TXT:
		return true
	}
	return false
}

func (e *NativeEngine) Extract(ctx context.Context, doc Document) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	switch doc.Format {
	case constants.PDF:
		text, pages, err := pdfText(doc.Data, e.maxPages)
		return Output{Text: text, Pages: pages}, err
	case constants.DOCX:
		text, err := docxText(doc.Data)
		return Output{Text: text}, err
	case constants.XLSX:
		text, sheets, err := xlsxText(doc.Data)
		return Output{Text: text, Pages: sheets}, err
	case constants.HTML:
		text, err := htmlText(doc.Data)
		return Output{Text: text, Pages: 1}, err
	case constants.EML:
		return emlText(ctx, doc.Data, e.maxPages, e.logger)
	case constants.TXT:
		text, err := plainText(doc.Data)
		return Output{Text: text, Pages: 1}, err
	}
	return Output{}, fmt.Errorf("%w: native cannot read %q", ErrUnsupported, doc.Format)
}
