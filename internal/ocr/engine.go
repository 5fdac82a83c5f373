// Package ocr turns an uploaded file into plain text by trying an ordered list
// of extraction engines until one yields enough text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// Document is an upload held in memory.
type Document struct {
	Name   string
	MIME   string
	Format string // constants.PDF | constants.IMAGE | ...
	Data   []byte
}

// NewDocument resolves the format from the MIME type, falling back to the name.
func NewDocument(name, mimeType string, data []byte) Document {
	if mimeType == "" {
		mimeType = constants.MIMEForExt(filepath.Ext(name))
	}
	return Document{
		Name:   name,
		MIME:   mimeType,
		Format: constants.FormatOf(name, mimeType),
		Data:   data,
	}
}

// Ext returns the lowercased extension of the document name without the dot.
func (d Document) Ext() string {
	return constants.NormalizeExt(filepath.Ext(d.Name))
}

// Output is what one engine produced. Pages is 0 when the engine cannot tell.
type Output struct {
	Text     string
	Pages    int
	Warnings []string
}

// Engine is one extraction strategy.
type Engine interface {
	Name() string
	Supports(doc Document) bool
	Extract(ctx context.Context, doc Document) (Output, error)
}

// Attempt records one engine run for logging and diagnostics.
type Attempt struct {
	Engine  string        `json:"engine"`
	OK      bool          `json:"ok"`
	Skipped bool          `json:"skipped,omitempty"`
	Chars   int           `json:"chars"`
	Latency time.Duration `json:"latency"`
	Err     string        `json:"error,omitempty"`
}

// Result is the accepted text and every attempt made to get it.
type Result struct {
	Text       string
	PageCount  int
	EngineUsed string
	Warnings   []string
	Attempts   []Attempt
}

// ErrExhausted is matched by every *ExhaustedError.
var ErrExhausted = errors.New("ocr: all engines exhausted")

// ErrUnsupported is returned by engines asked to handle a format they cannot.
var ErrUnsupported = errors.New("ocr: unsupported document")

// ErrTooLittleText marks output below the meaningful-character threshold.
var ErrTooLittleText = errors.New("ocr: too little text")

// ExhaustedError carries the attempts made before giving up.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		switch {
		case a.Skipped:
			parts = append(parts, a.Engine+": skipped")
		case a.Err != "":
			parts = append(parts, a.Engine+": "+a.Err)
		default:
			parts = append(parts, fmt.Sprintf("%s: %d chars", a.Engine, a.Chars))
		}
	}
	if len(parts) == 0 {
		return ErrExhausted.Error() + " (no engines configured)"
	}
	return ErrExhausted.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }
