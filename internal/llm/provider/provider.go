// Package provider builds the configured llm.Client.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/llm"
	"github.com/joseph-ayodele/doc-intake/internal/llm/gemini"
	"github.com/joseph-ayodele/doc-intake/internal/llm/openai"
)

// New returns the client for cfg.Provider and a function releasing it.
func New(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Client, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", "openai":
		c := openai.NewClient(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
		logger.Info("llm.provider", "provider", "openai", "model", c.Model())
		return c, noop, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("llm.provider", "provider", "gemini", "model", c.Model())
		return c, c.Close, nil
	}
	return nil, noop, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown LLM provider %q", cfg.Provider), common.ErrInvalidInput)
}

// NewAdapter wires the configured client into an llm.Adapter.
func NewAdapter(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (*llm.Adapter, func() error, error) {
	client, closeFn, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, closeFn, err
	}
	return llm.NewAdapter(client, logger,
		llm.WithTimeout(cfg.Timeout),
		llm.WithTemperature(cfg.Temperature),
		llm.WithMaxInputChars(cfg.MaxInputChars),
	), closeFn, nil
}
