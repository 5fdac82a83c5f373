package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout     = 45 * time.Second
	DefaultTemperature = 0.1
)

// Adapter turns document text into a StructuredResult through a provider
// Client and the recovery chain. It never fails: anything unusable becomes
// DefaultResult with a diagnostic.
type Adapter struct {
	client        Client
	strategies    []RecoveryStrategy
	timeout       time.Duration
	maxInputChars int
	temperature   float32
	logger        *slog.Logger
}

type AdapterOption func(*Adapter)

func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithMaxInputChars(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.maxInputChars = n
		}
	}
}

func WithTemperature(t float32) AdapterOption {
	return func(a *Adapter) { a.temperature = t }
}

// WithStrategies replaces the recovery chain.
func WithStrategies(s ...RecoveryStrategy) AdapterOption {
	return func(a *Adapter) { a.strategies = s }
}

func NewAdapter(client Client, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		client:        client,
		strategies:    DefaultStrategies(),
		timeout:       DefaultTimeout,
		maxInputChars: DefaultMaxInputChars,
		temperature:   DefaultTemperature,
		logger:        logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ExtractStructured asks the model for structured fields and recovers what it can
// from the answer.
func (a *Adapter) ExtractStructured(ctx context.Context, text, docType string, hints Hints) (ext Extraction) {
	rid := uuid.New().String()
	start := time.Now()
	ext.ReqID = rid
	ext.Usage.Model = a.client.Model()
	log := a.logger.With("req_id", rid)

	defer func() {
		if r := recover(); r != nil {
			log.Error("llm.extract.panic", "panic", r)
			ext.Result = DefaultResult(fmt.Sprintf("extraction failed: %v", r))
			ext.Strategy = ""
		}
		ext.Usage.LatencyMS = time.Since(start).Milliseconds()
	}()

	log.Info("llm.extract.start",
		"model", ext.Usage.Model,
		"doc_type", docType,
		"text_len", len(text),
		"hint_dates", len(hints.Dates),
	)

	prompt := BuildPrompt(text, docType, hints, a.maxInputChars, a.temperature)
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	comp, err := a.client.Complete(cctx, prompt)
	if comp.Model != "" {
		ext.Usage.Model = comp.Model
	}
	ext.Usage.PromptTokens = comp.PromptTokens
	ext.Usage.CompletionTokens = comp.CompletionTokens
	if err != nil {
		diag := "model call failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			diag = fmt.Sprintf("model call timed out after %s", a.timeout)
		}
		log.Error("llm.extract.client_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		ext.Result = DefaultResult(diag)
		return ext
	}

	result, strategy, diag := a.recoverResult(log, comp.Content)
	if strategy == "" {
		log.Error("llm.extract.unrecoverable",
			"diagnostic", diag,
			"content_len", len(comp.Content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		ext.Result = DefaultResult(diag)
		return ext
	}

	if len(result.KeyDates) == 0 && len(hints.Dates) > 0 {
		for _, d := range hints.Dates {
			result.KeyDates = append(result.KeyDates, KeyDate{Label: d.Label, Date: d.ISO})
		}
		log.Debug("llm.extract.key_dates_from_text", "count", len(result.KeyDates))
	}
	result.fillEmpty()

	ext.Result = result
	ext.Strategy = strategy
	log.Info("llm.extract.ok",
		"strategy", strategy,
		"title", result.DocumentTitle,
		"key_dates", len(result.KeyDates),
		"confidence", result.Confidence,
		"prompt_tokens", comp.PromptTokens,
		"completion_tokens", comp.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ext
}

// recoverResult runs the strategies in order and returns the first candidate
// that sanitizes and validates.
func (a *Adapter) recoverResult(log *slog.Logger, content string) (StructuredResult, string, string) {
	var lastErr error
	for i, s := range a.strategies {
		m, err := s.Decode(content)
		if err != nil {
			log.Debug("llm.recover.miss", "strategy", s.Name, "error", err)
			lastErr = err
			continue
		}
		res, err := finish(m, log)
		if err != nil {
			log.Debug("llm.recover.invalid", "strategy", s.Name, "error", err)
			lastErr = err
			continue
		}
		if i > 0 {
			log.Warn("llm.recover.fallback", "strategy", s.Name, "position", i+1)
		}
		return res, s.Name, ""
	}
	diag := "model response could not be parsed"
	if lastErr != nil {
		diag += ": " + lastErr.Error()
	}
	return StructuredResult{}, "", diag
}

func finish(m map[string]any, log *slog.Logger) (StructuredResult, error) {
	Sanitize(m, log)
	b, err := json.Marshal(m)
	if err != nil {
		return StructuredResult{}, fmt.Errorf("encode: %w", err)
	}
	if err := ValidateResult(b); err != nil {
		return StructuredResult{}, err
	}
	var out StructuredResult
	if err := json.Unmarshal(b, &out); err != nil {
		return StructuredResult{}, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}
