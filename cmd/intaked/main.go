package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/doc-intake/internal/app"
	"github.com/joseph-ayodele/doc-intake/internal/common"
)

func main() {
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log, os.Stderr)

	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage.open.fail", "err", err)
		os.Exit(1)
	}
	defer storage.Close()

	w, err := app.NewWorker(ctx, cfg, storage, logger)
	if err != nil {
		logger.Error("worker.init.fail", "err", err)
		storage.Close()
		os.Exit(1)
	}

	if err := w.Run(ctx); err != nil {
		logger.Error("worker.run.fail", "err", err)
		storage.Close()
		os.Exit(1)
	}
}
