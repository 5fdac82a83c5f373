package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMinChars      = 50
	DefaultEngineTimeout = 45 * time.Second
)

// Selector runs engines in order and returns the first acceptable text.
type Selector struct {
	engines  []Engine
	minChars int
	timeout  time.Duration
	logger   *slog.Logger
}

type SelectorOption func(*Selector)

// WithMinChars sets how many non-space characters make an output acceptable.
func WithMinChars(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.minChars = n
		}
	}
}

// WithEngineTimeout bounds each engine attempt.
func WithEngineTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSelector(engines []Engine, logger *slog.Logger, opts ...SelectorOption) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Selector{
		engines:  engines,
		minChars: DefaultMinChars,
		timeout:  DefaultEngineTimeout,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engines returns the configured engine names in order.
func (s *Selector) Engines() []string {
	names := make([]string, len(s.engines))
	for i, e := range s.engines {
		names[i] = e.Name()
	}
	return names
}

// ExtractText tries each engine in turn. Engine errors, timeouts and outputs
// below the character threshold move on to the next engine. When none
// succeeds the error matches ErrExhausted; cancellation of ctx itself is
// returned as the context error instead.
func (s *Selector) ExtractText(ctx context.Context, doc Document) (Result, error) {
	var res Result
	log := s.logger.With("doc", doc.Name, "format", doc.Format)

	for _, eng := range s.engines {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := eng.Name()
		if !eng.Supports(doc) {
			log.Debug("ocr.attempt.skip", "engine", name)
			res.Attempts = append(res.Attempts, Attempt{Engine: name, Skipped: true})
			continue
		}

		start := time.Now()
		out, err := s.run(ctx, eng, doc)
		att := Attempt{Engine: name, Latency: time.Since(start)}

		if err == nil {
			out.Text = Normalize(out.Text)
			att.Chars = MeaningfulChars(out.Text)
			if att.Chars < s.minChars {
				err = fmt.Errorf("%w: %d < %d", ErrTooLittleText, att.Chars, s.minChars)
			}
		}
		if err != nil {
			// the caller gave up; this is not an engine failure
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			att.Err = err.Error()
			res.Attempts = append(res.Attempts, att)
			res.Warnings = append(res.Warnings, out.Warnings...)
			log.Warn("ocr.attempt.fail", "engine", name, "elapsed_ms", att.Latency.Milliseconds(),
				"chars", att.Chars, "err", err)
			continue
		}

		att.OK = true
		res.Attempts = append(res.Attempts, att)
		res.Text = out.Text
		res.PageCount = out.Pages
		if res.PageCount <= 0 {
			res.PageCount = pagesIn(out.Text)
		}
		res.EngineUsed = name
		res.Warnings = append(res.Warnings, out.Warnings...)
		log.Info("ocr.attempt.ok", "engine", name, "elapsed_ms", att.Latency.Milliseconds(),
			"chars", att.Chars, "pages", res.PageCount)
		return res, nil
	}

	log.Error("ocr.exhausted", "attempts", len(res.Attempts))
	return res, &ExhaustedError{Attempts: res.Attempts}
}

type engineResult struct {
	out Output
	err error
}

// run executes one engine under its own deadline. A stuck engine that ignores
// its context is abandoned; the buffered channel lets its goroutine finish.
func (s *Selector) run(ctx context.Context, eng Engine, doc Document) (Output, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan engineResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- engineResult{err: fmt.Errorf("engine %s panicked: %v", eng.Name(), r)}
			}
		}()
		out, err := eng.Extract(actx, doc)
		ch <- engineResult{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Output{}, fmt.Errorf("engine %s timed out after %s: %w", eng.Name(), s.timeout, actx.Err())
		}
		return Output{}, actx.Err()
	}
}

func pagesIn(text string) int {
	if text == "" {
		return 0
	}
	n := 1
	for _, r := range text {
		if r == '\f' {
			n++
		}
	}
	return n
}
