package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyJobID     contextKey = "job_id"
	ContextKeyWorkerID  contextKey = "worker_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithJobID adds the job being processed to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// JobIDFromContext extracts the job ID from context
func JobIDFromContext(ctx context.Context) string {
	if jobID, ok := ctx.Value(ContextKeyJobID).(string); ok {
		return jobID
	}
	return ""
}

// WithWorkerID adds the worker identity to the context
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkerID, workerID)
}

// WorkerIDFromContext extracts the worker identity from context
func WorkerIDFromContext(ctx context.Context) string {
	if workerID, ok := ctx.Value(ContextKeyWorkerID).(string); ok {
		return workerID
	}
	return ""
}

// WithTimeout creates a context with the specified timeout; d <= 0 means no timeout.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
