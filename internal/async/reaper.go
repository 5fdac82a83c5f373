package async

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reaper fails jobs that have sat in an active status longer than staleAfter,
// typically because their worker died without resuming them.
type Reaper struct {
	jobs       repository.JobRepository
	staleAfter time.Duration
	schedule   cron.Schedule
	spec       string
	logger     *slog.Logger
}

// NewReaper parses spec as a five-field cron expression or a descriptor such
// as "@every 1m".
func NewReaper(jobs repository.JobRepository, staleAfter time.Duration, spec string, logger *slog.Logger) (*Reaper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("reaper schedule %q: %w", spec, err)
	}
	return &Reaper{jobs: jobs, staleAfter: staleAfter, schedule: sched, spec: spec, logger: logger}, nil
}

// Run sweeps on schedule until ctx ends.
func (r *Reaper) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(scheduleParser))
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reaper.sweep.fail", "err", err)
		}
	}))
	c.Start()
	r.logger.Info("reaper.start", "schedule", r.spec, "stale_after", r.staleAfter)

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("reaper.stop")
	return nil
}

// Sweep runs one pass and returns how many jobs it failed.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	msg := fmt.Sprintf("no progress for %s; worker presumed dead", r.staleAfter)
	n, err := r.jobs.FailStale(ctx, r.staleAfter, msg)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("reaper.failed_stale", "count", n, "stale_after", r.staleAfter)
	}
	return n, nil
}
