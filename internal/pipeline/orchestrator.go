// Package pipeline drives a job from QUEUED to READY or FAILED, persisting
// every step so that any worker can pick up where another stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/extract"
	"github.com/joseph-ayodele/doc-intake/internal/jobstate"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

// Outcome is how a Process or Resume call ended.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeSkipped means another worker owns the job, or this worker
	// stopped before finishing it.
	OutcomeSkipped Outcome = "skipped"
)

// failWriteTimeout bounds the FAILED write made after ctx has ended.
const failWriteTimeout = 10 * time.Second

// DocumentLoader fetches the upload of a job.
type DocumentLoader interface {
	Load(ctx context.Context, job *entity.Job) (ocr.Document, error)
}

var _ DocumentLoader = (*extract.BlobDocuments)(nil)

type Orchestrator struct {
	jobs       repository.JobRepository
	docs       DocumentLoader
	text       extract.TextExtractor
	classifier extract.Classifier
	fields     extract.FieldExtractor
	logger     *slog.Logger
	retry      common.RetryConfig
	workerID   string
}

type Option func(*Orchestrator)

// WithRetry sets the retry policy for job-table and blob reads and writes.
func WithRetry(cfg common.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithWorkerID sets the name recorded in claimed_by.
func WithWorkerID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.workerID = id
		}
	}
}

func NewOrchestrator(
	jobs repository.JobRepository,
	docs DocumentLoader,
	text extract.TextExtractor,
	classifier extract.Classifier,
	fields extract.FieldExtractor,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		jobs:       jobs,
		docs:       docs,
		text:       text,
		classifier: classifier,
		fields:     fields,
		logger:     logger,
		retry:      common.DefaultRetryConfig(),
		workerID:   "worker-" + uuid.NewString()[:8],
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) WorkerID() string { return o.workerID }

// Process claims a QUEUED job and runs it to a terminal status. Losing the
// claim returns OutcomeSkipped and an error matching common.ErrClaimConflict.
// A cancelled job returns common.ErrCancelled; a failed job an *AppError
// whose Code is the persisted error code.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) (Outcome, error) {
	log := o.logger.With("job_id", id, "worker_id", o.workerID)
	if err := o.claim(ctx, id, log); err != nil {
		switch {
		case errors.Is(err, common.ErrClaimConflict):
			return OutcomeSkipped, err
		case errors.Is(err, common.ErrCancelled):
			log.Info("pipeline.cancelled", "status", constants.JobStatusQueued)
			return OutcomeCancelled, common.ErrCancelled
		}
		return OutcomeSkipped, common.NewAppError(string(constants.ErrorCodeStorage), "claim failed", err)
	}
	return o.drive(ctx, id, log)
}

// Resume continues a job from whatever status it was left in. Stages whose
// output is already on the row are not run again.
func (o *Orchestrator) Resume(ctx context.Context, id uuid.UUID) (Outcome, error) {
	log := o.logger.With("job_id", id, "worker_id", o.workerID)
	log.Info("pipeline.resume")
	return o.drive(ctx, id, log)
}

func (o *Orchestrator) claim(ctx context.Context, id uuid.UUID, log *slog.Logger) error {
	attempt := 0
	err := common.Retry(ctx, o.retry, func(ctx context.Context) error {
		attempt++
		err := o.jobs.Claim(ctx, id, o.workerID)
		if attempt > 1 && errors.Is(err, common.ErrClaimConflict) && o.landed(ctx, id, constants.JobStatusOCR) {
			log.Info("pipeline.claim.recovered")
			return nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrClaimConflict) {
			log.Debug("pipeline.claim.conflict", "err", err)
		} else if !errors.Is(err, common.ErrCancelled) {
			log.Error("pipeline.claim.fail", "err", err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job *entity.Job
	err := common.Retry(ctx, o.retry, func(ctx context.Context) error {
		j, err := o.jobs.GetJob(ctx, id)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	return job, err
}

// drive reloads the row before every stage, so cancellation and concurrent
// changes are seen between stages.
func (o *Orchestrator) drive(ctx context.Context, id uuid.UUID, log *slog.Logger) (Outcome, error) {
	start := time.Now()
	for {
		job, err := o.load(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return OutcomeSkipped, common.NewAppError(string(constants.ErrorCodeUnknown), "job not found", err)
			}
			log.Error("pipeline.load.fail", "err", err)
			return OutcomeSkipped, common.NewAppError(string(constants.ErrorCodeStorage), "load failed", err)
		}
		if job.IsCancelled() {
			log.Info("pipeline.cancelled", "status", job.Status)
			return OutcomeCancelled, common.ErrCancelled
		}

		phase, err := jobstate.FromJob(job)
		if err != nil {
			log.Error("pipeline.invariant", "status", job.Status, "err", err)
			return o.fail(ctx, job, err, log)
		}

		var next jobstate.Phase
		switch ph := phase.(type) {
		case jobstate.Ready:
			log.Info("pipeline.ready",
				"doc_type", ph.Class.DocType,
				"engine", ph.OCR.Engine,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return OutcomeReady, nil
		case jobstate.Failed:
			return OutcomeFailed, failure(ph.Code, errors.New(ph.Message))
		case jobstate.Queued:
			if err := o.claim(ctx, id, log); err != nil {
				switch {
				case errors.Is(err, common.ErrClaimConflict):
					return OutcomeSkipped, err
				case errors.Is(err, common.ErrCancelled):
					continue
				}
				return OutcomeSkipped, common.NewAppError(string(constants.ErrorCodeStorage), "claim failed", err)
			}
			continue
		default:
			next, err = o.runStage(ctx, job, phase, log)
		}

		if err != nil {
			if ctx.Err() != nil {
				return o.interrupted(ctx, job, err, log)
			}
			return o.fail(ctx, job, err, log)
		}

		if err := o.advance(ctx, job, next); err != nil {
			switch {
			case errors.Is(err, common.ErrCancelled):
				log.Info("pipeline.cancelled", "status", job.Status)
				return OutcomeCancelled, common.ErrCancelled
			case errors.Is(err, common.ErrClaimConflict):
				log.Warn("pipeline.transition.conflict", "from", job.Status, "to", next.Status(), "err", err)
				return OutcomeSkipped, err
			case ctx.Err() != nil:
				return o.interrupted(ctx, job, err, log)
			}
			return o.fail(ctx, job, err, log)
		}
	}
}

// runStage runs the stage for phase. A panic becomes an error.
func (o *Orchestrator) runStage(ctx context.Context, job *entity.Job, phase jobstate.Phase, log *slog.Logger) (next jobstate.Phase, err error) {
	stage := phase.Status()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline.stage.panic", "stage", stage, "panic", r)
			next, err = nil, fmt.Errorf("panic in %s stage: %v", stage, r)
		}
	}()

	switch ph := phase.(type) {
	case jobstate.InOCR:
		next, err = o.ocrStage(ctx, job, ph, log)
	case jobstate.InExtract:
		next, err = o.classifyStage(ph, log)
	case jobstate.InSummarise:
		next, err = o.summariseStage(ctx, job, ph, log)
	default:
		return nil, fmt.Errorf("no stage for status %s", stage)
	}
	if err != nil {
		log.Warn("pipeline.stage.fail", "stage", stage, "elapsed_ms", time.Since(start).Milliseconds(), "err", err)
		return nil, err
	}
	log.Info("pipeline.stage.ok", "stage", stage, "next", next.Status(), "elapsed_ms", time.Since(start).Milliseconds())
	return next, nil
}

// advance writes next with a compare-and-set on the job's current status.
func (o *Orchestrator) advance(ctx context.Context, job *entity.Job, next jobstate.Phase) error {
	patch := jobstate.PatchFor(next)
	attempt := 0
	return common.Retry(ctx, o.retry, func(ctx context.Context) error {
		attempt++
		err := o.jobs.Transition(ctx, job.ID, job.Status, next.Status(), patch)
		if attempt > 1 && errors.Is(err, common.ErrClaimConflict) && o.landed(ctx, job.ID, next.Status()) {
			o.logger.Info("pipeline.transition.recovered", "job_id", job.ID, "from", job.Status, "to", next.Status())
			return nil
		}
		return err
	})
}

// landed reports whether a write whose result was lost already moved the job
// to status under this worker.
func (o *Orchestrator) landed(ctx context.Context, id uuid.UUID, status constants.JobStatus) bool {
	job, err := o.jobs.GetJob(ctx, id)
	if err != nil {
		return false
	}
	return job.Status == status && job.ClaimedBy != nil && *job.ClaimedBy == o.workerID
}

// fail moves the job to FAILED with the code for cause.
func (o *Orchestrator) fail(ctx context.Context, job *entity.Job, cause error, log *slog.Logger) (Outcome, error) {
	code := ErrorCodeFor(cause)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	err := o.advance(wctx, job, jobstate.Failed{Code: code, Message: errorMessage(cause)})
	switch {
	case err == nil:
		log.Error("pipeline.failed", "from", job.Status, "code", code, "err", cause)
		return OutcomeFailed, failure(code, cause)
	case errors.Is(err, common.ErrCancelled):
		log.Info("pipeline.cancelled", "status", job.Status)
		return OutcomeCancelled, common.ErrCancelled
	case errors.Is(err, common.ErrClaimConflict):
		log.Warn("pipeline.fail.conflict", "from", job.Status, "err", err)
		return OutcomeSkipped, err
	}
	log.Error("pipeline.fail.write_error", "from", job.Status, "code", code, "cause", cause, "err", err)
	return OutcomeSkipped, common.NewAppError(string(constants.ErrorCodeStorage), "could not record failure", errors.Join(cause, err))
}

// interrupted handles a stage cut short by ctx. A deadline fails the job; a
// cancellation (shutdown) leaves it for Resume.
func (o *Orchestrator) interrupted(ctx context.Context, job *entity.Job, cause error, log *slog.Logger) (Outcome, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return o.fail(ctx, job, fmt.Errorf("job deadline exceeded in %s: %w", job.Status, cause), log)
	}
	log.Warn("pipeline.interrupted", "status", job.Status, "err", cause)
	return OutcomeSkipped, common.NewAppError("INTERRUPTED", "job left in "+string(job.Status), ctx.Err())
}
