// Package main implements the OCR worker process. It runs a pool of workers
// that claim tasks from the shared queue, together with the stuck task
// monitor, the retention janitor and the webhook notifier.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("worker configuration loaded",
		"store_backend", cfg.Store.Backend,
		"workers", cfg.Worker.Count,
		"max_retries", cfg.Worker.MaxRetries,
		"max_task_duration", cfg.Worker.MaxTaskDuration,
		"languages", cfg.OCR.Languages)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, err := newProcess(ctx, cfg, log)
	if err != nil {
		return err
	}
	return proc.run(ctx)
}
