package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/doc-intake/internal/async"
	"github.com/joseph-ayodele/doc-intake/internal/classify"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/extract"
	"github.com/joseph-ayodele/doc-intake/internal/llm/provider"
	"github.com/joseph-ayodele/doc-intake/internal/pipeline"
	"github.com/joseph-ayodele/doc-intake/internal/rules"
)

// HealthService is the service name the worker reports besides "".
const HealthService = "docintake.Worker"

// ShutdownGrace bounds how long running jobs may finish after a stop signal.
const ShutdownGrace = 30 * time.Second

// Worker is the intake daemon: poller, worker pool, reaper and health server.
type Worker struct {
	cfg     *common.Config
	logger  *slog.Logger
	storage *Storage
	rules   *rules.Store

	orch   *pipeline.Orchestrator
	queue  *async.WorkerQueue
	poller *async.Poller
	reaper *async.Reaper
	health *health.Server

	closers []func() error
}

// NewWorker builds every component from cfg. The caller owns storage.
func NewWorker(ctx context.Context, cfg *common.Config, storage *Storage, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{cfg: cfg, logger: logger, storage: storage}

	rs, err := LoadRules(cfg.Rules.File, logger)
	if err != nil {
		return nil, err
	}
	w.rules = rules.NewStore(rs)

	selector, err := NewSelector(ctx, cfg.OCR, logger)
	if err != nil {
		return nil, err
	}

	adapter, closeLLM, err := provider.NewAdapter(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	w.closers = append(w.closers, closeLLM)

	w.orch = pipeline.NewOrchestrator(
		storage.Jobs,
		extract.NewBlobDocuments(storage.Blobs, logger),
		selector,
		classify.New(w.rules),
		adapter,
		logger,
		pipeline.WithWorkerID(cfg.Worker.ID),
		pipeline.WithRetry(RetryConfig(cfg.Worker)),
	)
	w.queue = async.NewWorkerQueue(w.orch, logger,
		async.WithWorkers(cfg.Worker.Concurrency),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.JobTimeout),
	)
	w.poller = async.NewPoller(storage.Jobs, w.queue, logger,
		async.WithPollInterval(cfg.Worker.PollInterval),
		async.WithWorkerID(cfg.Worker.ID),
	)
	w.reaper, err = async.NewReaper(storage.Jobs, cfg.Worker.StaleAfter, cfg.Worker.ReaperSchedule, logger)
	if err != nil {
		w.queue.Shutdown(context.Background())
		return nil, common.NewAppError("CONFIG_ERROR", err.Error(), common.ErrInvalidInput)
	}
	w.health = health.NewServer()

	logger.Info("worker.ready",
		"worker_id", cfg.Worker.ID,
		"engines", selector.Engines(),
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"rules_version", rs.Version,
		"concurrency", cfg.Worker.Concurrency,
	)
	return w, nil
}

// Run blocks until ctx ends, then drains: health goes NOT_SERVING, polling
// stops, and running jobs get ShutdownGrace to finish.
func (w *Worker) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", w.cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", w.cfg.Server.GRPCAddr, err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, w.health)
	w.setServing(healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.logger.Info("health.serve", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error { return w.poller.Run(gctx) })
	g.Go(func() error { return w.reaper.Run(gctx) })
	g.Go(func() error { w.watchSIGHUP(gctx); return nil })
	g.Go(func() error {
		<-gctx.Done()
		w.logger.Info("worker.drain", "busy", w.queue.Busy())
		w.setServing(healthpb.HealthCheckResponse_NOT_SERVING)

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), ShutdownGrace)
		defer cancel()
		w.queue.Shutdown(sctx)

		w.health.Shutdown()
		srv.GracefulStop()
		return nil
	})

	err = g.Wait()
	for _, c := range w.closers {
		if cerr := c(); cerr != nil {
			w.logger.Warn("worker.close.fail", "err", cerr)
		}
	}
	w.logger.Info("worker.stopped")
	return err
}

func (w *Worker) setServing(st healthpb.HealthCheckResponse_ServingStatus) {
	w.health.SetServingStatus("", st)
	w.health.SetServingStatus(HealthService, st)
}

func (w *Worker) watchSIGHUP(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := ReloadRules(w.rules, w.cfg.Rules.File, w.logger); err != nil {
				w.logger.Warn("rules.reload.rejected", "file", w.cfg.Rules.File, "err", err)
			}
		}
	}
}
