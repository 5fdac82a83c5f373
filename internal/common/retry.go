package common

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff after each attempt.
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	JitterFraction float64
}

// DefaultRetryConfig is the bounded retry used for job-table writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, or runs out of attempts.
// It returns the last error seen.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt >= cfg.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(backoff) * cfg.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}

// IsRetryable reports whether err is worth another attempt.
// Lost races, missing rows, bad input and context errors are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrClaimConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrCancelled):
		return false
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return false
	}
	return true
}
