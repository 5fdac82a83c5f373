package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/pipeline"
)

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, id uuid.UUID) (pipeline.Outcome, error)
	Resume(ctx context.Context, id uuid.UUID) (pipeline.Outcome, error)
}

// WorkerQueue feeds jobs to a fixed pool of workers through a bounded channel.
// A job id is held from Enqueue until its worker finishes, so the same job is
// never queued twice.
type WorkerQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base is cancelled when Shutdown gives up waiting; in-flight jobs are
	// then left in their current status for the next start to resume.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inFlight map[uuid.UUID]struct{}
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWorkerQueue(proc Processor, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		proc:     proc,
		logger:   logger,
		workers:  4,
		timeout:  5 * time.Minute,
		ch:       make(chan Job, 64),
		inFlight: make(map[uuid.UUID]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(slot int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.start", "slot", slot)
				for job := range q.ch {
					q.run(slot, job)
				}
				q.logger.Debug("queue.worker.stop", "slot", slot)
			}(i + 1)
		}
	})
}

func (q *WorkerQueue) run(slot int, job Job) {
	defer q.release(job.ID)
	if q.base.Err() != nil {
		// stays QUEUED or claimed; picked up on the next start
		return
	}

	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	ctx = common.WithJobID(ctx, job.ID.String())

	start := time.Now()
	var (
		outcome pipeline.Outcome
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job.panic", "slot", slot, "job_id", job.ID, "panic", r)
		}
	}()
	if job.Resume {
		outcome, err = q.proc.Resume(ctx, job.ID)
	} else {
		outcome, err = q.proc.Process(ctx, job.ID)
	}

	attrs := []any{
		"slot", slot,
		"job_id", job.ID,
		"outcome", outcome,
		"wait_ms", start.Sub(job.EnqueuedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	switch {
	case err == nil, errors.Is(err, common.ErrCancelled), errors.Is(err, common.ErrClaimConflict):
		q.logger.Info("queue.job.done", attrs...)
	default:
		q.logger.Warn("queue.job.done", append(attrs, "err", err)...)
	}
}

// Enqueue never blocks: a full queue returns ErrQueueFull and the job stays
// QUEUED for a later poll.
func (q *WorkerQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, busy := q.inFlight[job.ID]; busy {
		return ErrInFlight
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.inFlight[job.ID] = struct{}{}
		q.logger.Debug("queue.enqueue", "job_id", job.ID, "resume", job.Resume)
		return nil
	default:
		return ErrQueueFull
	}
}

// Free returns how many more jobs Enqueue would currently accept.
func (q *WorkerQueue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	return cap(q.ch) - len(q.ch)
}

// Busy reports how many jobs are queued or running.
func (q *WorkerQueue) Busy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *WorkerQueue) release(id uuid.UUID) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

// Shutdown stops intake and waits for workers. When ctx ends first, running
// jobs are interrupted.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted", "busy", q.Busy())
		q.cancel()
		<-done
	case <-done:
		q.cancel()
		q.logger.Info("queue.shutdown.drained")
	}
}
