package async

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

// Poller moves QUEUED rows from the job table into a WorkerQueue.
type Poller struct {
	jobs     repository.JobRepository
	queue    *WorkerQueue
	logger   *slog.Logger
	interval time.Duration
	workerID string
}

type PollerOption func(*Poller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithWorkerID must match the orchestrator's worker id so Run can resume the
// jobs this worker claimed before a restart.
func WithWorkerID(id string) PollerOption {
	return func(p *Poller) { p.workerID = id }
}

func NewPoller(jobs repository.JobRepository, queue *WorkerQueue, logger *slog.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		jobs:     jobs,
		queue:    queue,
		logger:   logger,
		interval: 2 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls until ctx ends. It does not shut the queue down.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller.start", "interval", p.interval, "worker_id", p.workerID)
	if p.workerID != "" {
		p.resumeClaimed(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("poller.stop")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll enqueues as many QUEUED jobs as the queue has room for and returns
// how many it enqueued.
func (p *Poller) Poll(ctx context.Context) int {
	free := p.queue.Free()
	if free == 0 {
		return 0
	}
	ids, err := p.jobs.ListQueued(ctx, free)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("poller.list.fail", "err", err)
		}
		return 0
	}
	n := 0
	for _, id := range ids {
		if err := p.queue.Enqueue(ctx, Job{ID: id, EnqueuedAt: time.Now()}); err != nil {
			if errors.Is(err, ErrInFlight) {
				continue
			}
			if !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrQueueClosed) {
				p.logger.Warn("poller.enqueue.fail", "job_id", id, "err", err)
			}
			break
		}
		n++
	}
	if n > 0 {
		p.logger.Debug("poller.enqueued", "count", n)
	}
	return n
}

func (p *Poller) resumeClaimed(ctx context.Context) {
	ids, err := p.jobs.ListClaimed(ctx, p.workerID)
	if err != nil {
		p.logger.Error("poller.resume.list_fail", "err", err)
		return
	}
	for _, id := range ids {
		if err := p.queue.Enqueue(ctx, Job{ID: id, Resume: true, EnqueuedAt: time.Now()}); err != nil {
			if errors.Is(err, ErrInFlight) {
				continue
			}
			p.logger.Warn("poller.resume.enqueue_fail", "job_id", id, "err", err)
			return
		}
	}
	if len(ids) > 0 {
		p.logger.Info("poller.resume", "count", len(ids))
	}
}
