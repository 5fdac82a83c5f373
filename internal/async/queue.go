package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Enqueue when no slot is free.
var ErrQueueFull = errors.New("async: queue full")

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("async: queue closed")

// ErrInFlight is returned by Enqueue for a job already queued or running.
var ErrInFlight = errors.New("async: job already in flight")

// Job is one unit of work for a worker.
type Job struct {
	ID uuid.UUID
	// Resume continues a job this worker had already claimed instead of
	// claiming a QUEUED one.
	Resume     bool
	EnqueuedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
