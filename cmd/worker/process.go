package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/private-doc-vault/docvault-ocr-service/internal/app"
	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/filestore"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

// process owns the worker runtime and everything it depends on.
type process struct {
	config  *config.Config
	logger  *slog.Logger
	backend *app.Backend
	events  *app.Events
	metrics *metrics.Metrics
	workers *app.Workers
}

// newProcess connects the backend and builds the workers around the
// recognition engine.
func newProcess(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*process, error) {
	return newProcessWith(ctx, cfg, nil, logger)
}

// newProcessWith is newProcess with an explicit pipeline; nil falls back to
// the recognition engine.
func newProcessWith(ctx context.Context, cfg *config.Config, processor *pipeline.Pipeline, logger *slog.Logger) (*process, error) {
	if processor == nil {
		var err error
		processor, err = app.NewProcessor(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	p := &process{config: cfg, logger: logger, metrics: metrics.New()}

	var err error
	p.backend, err = app.OpenBackend(ctx, cfg, app.BackendOptions{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Store.Backend, err)
	}

	files, err := filestore.NewLocal(cfg.Storage.BaseDir, logger)
	if err != nil {
		p.close()
		return nil, err
	}

	p.events, err = app.NewEvents(cfg.Webhook, p.metrics, logger)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("failed to set up webhooks: %w", err)
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	p.workers = app.NewWorkers(host, cfg.Worker.Count, cfg, task.Dependencies{
		Store:     p.backend.Store,
		Queue:     p.backend.Queue,
		Processor: processor,
		Files:     files,
		Events:    p.events.Emitter,
		Metrics:   p.metrics,
	}, logger)
	return p, nil
}

// run starts the workers and the metrics endpoint, blocks until ctx is
// cancelled and then shuts everything down.
func (p *process) run(ctx context.Context) error {
	p.workers.Start(ctx)

	var serveErr error
	if p.config.Metrics.Addr != "" {
		srv := app.NewServer(p.config.Metrics.Addr, p.metrics.Handler())
		serveErr = app.Serve(ctx, srv, p.config.Server.ShutdownTimeout, p.logger.With("server", "metrics"))
	} else {
		<-ctx.Done()
	}

	p.logger.Info("shutting down, waiting for in-flight tasks")
	p.workers.Stop()
	p.close()
	return serveErr
}

func (p *process) close() {
	if p.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Server.ShutdownTimeout)
		if err := p.events.Close(ctx); err != nil {
			p.logger.Warn("webhook drain incomplete", "error", err)
		}
		cancel()
	}
	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			p.logger.Error("failed to close backend", "error", err)
		}
	}
}
