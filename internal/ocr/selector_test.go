package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-intake/constants"
)

type fakeEngine struct {
	name     string
	formats  []string
	text     string
	pages    int
	err      error
	delay    time.Duration
	panicMsg string
	calls    int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Supports(doc Document) bool {
	if len(f.formats) == 0 {
		return true
	}
	for _, fm := range f.formats {
		if fm == doc.Format {
			return true
		}
	}
	return false
}

func (f *fakeEngine) Extract(ctx context.Context, _ Document) (Output, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	}
	return Output{Text: f.text, Pages: f.pages}, f.err
}

var longText = strings.Repeat("Electrical Installation Condition Report ", 5)

func pdfDoc() Document { return NewDocument("report.pdf", "application/pdf", []byte("%PDF-1.4")) }

func TestSelector_FirstEngineWins(t *testing.T) {
	a := &fakeEngine{name: "a", text: longText, pages: 2}
	b := &fakeEngine{name: "b", text: longText}
	s := NewSelector([]Engine{a, b}, nil)

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "a", res.EngineUsed)
	assert.Equal(t, 2, res.PageCount)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 0, b.calls)
}

func TestSelector_FallsBackOnErrorAndThinText(t *testing.T) {
	failing := &fakeEngine{name: "broken", err: errors.New("boom")}
	thin := &fakeEngine{name: "thin", text: "  a b c \n\n"}
	good := &fakeEngine{name: "good", text: longText + "\f" + longText}
	s := NewSelector([]Engine{failing, thin, good}, nil)

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "good", res.EngineUsed)
	assert.Equal(t, 2, res.PageCount, "page count falls back to form feeds")
	require.Len(t, res.Attempts, 3)
	assert.Contains(t, res.Attempts[0].Err, "boom")
	assert.Contains(t, res.Attempts[1].Err, ErrTooLittleText.Error())
	assert.Equal(t, 3, res.Attempts[1].Chars)
	assert.True(t, res.Attempts[2].OK)
}

func TestSelector_MinCharsOption(t *testing.T) {
	e := &fakeEngine{name: "short", text: "Gas Safety"}
	s := NewSelector([]Engine{e}, nil, WithMinChars(5))

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "Gas Safety", res.Text)
}

func TestSelector_SkipsUnsupported(t *testing.T) {
	img := &fakeEngine{name: "images-only", formats: []string{constants.IMAGE}, text: longText}
	pdf := &fakeEngine{name: "pdf", formats: []string{constants.PDF}, text: longText}
	s := NewSelector([]Engine{img, pdf}, nil)

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "pdf", res.EngineUsed)
	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Skipped)
	assert.Equal(t, 0, img.calls)
}

func TestSelector_TimeoutMovesOn(t *testing.T) {
	slow := &fakeEngine{name: "slow", text: longText, delay: time.Second}
	fast := &fakeEngine{name: "fast", text: longText}
	s := NewSelector([]Engine{slow, fast}, nil, WithEngineTimeout(20*time.Millisecond))

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "fast", res.EngineUsed)
	assert.Contains(t, res.Attempts[0].Err, "timed out")
}

func TestSelector_PanicIsAnAttemptFailure(t *testing.T) {
	bad := &fakeEngine{name: "bad", panicMsg: "nil map"}
	good := &fakeEngine{name: "good", text: longText}
	s := NewSelector([]Engine{bad, good}, nil)

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "good", res.EngineUsed)
	assert.Contains(t, res.Attempts[0].Err, "panicked")
}

func TestSelector_Exhausted(t *testing.T) {
	s := NewSelector([]Engine{
		&fakeEngine{name: "a", err: errors.New("no text layer")},
		&fakeEngine{name: "b", text: "x"},
		&fakeEngine{name: "c", formats: []string{constants.IMAGE}},
	}, nil)

	res, err := s.ExtractText(context.Background(), pdfDoc())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Len(t, ex.Attempts, 3)
	assert.Len(t, res.Attempts, 3)
	assert.Empty(t, res.EngineUsed)
	assert.Contains(t, err.Error(), "a: no text layer")
	assert.Contains(t, err.Error(), "c: skipped")
}

func TestSelector_NoEngines(t *testing.T) {
	_, err := NewSelector(nil, nil).ExtractText(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "no engines configured")
}

func TestSelector_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &fakeEngine{name: "slow", text: longText, delay: time.Second}
	next := &fakeEngine{name: "next", text: longText}
	s := NewSelector([]Engine{slow, next}, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.ExtractText(ctx, pdfDoc())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, next.calls)
}

func TestSelector_Engines(t *testing.T) {
	s := NewSelector([]Engine{&fakeEngine{name: "native"}, &fakeEngine{name: "vision"}}, nil)
	assert.Equal(t, []string{"native", "vision"}, s.Engines())
}
