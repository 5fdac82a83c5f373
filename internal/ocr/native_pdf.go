package ocr

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// pdfText reads the text layer page by page, joining pages with form feeds.
// The pdf package panics on some malformed files, so panics become errors.
func pdfText(data []byte, maxPages int) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text layer: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	pages = r.NumPage()
	limit := pages
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}

	parts := make([]string, 0, limit)
	for i := 1; i <= limit; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			parts = append(parts, "")
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("pdf page %d: %w", i, err)
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, "\f"), pages, nil
}
