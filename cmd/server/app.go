package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/private-doc-vault/docvault-ocr-service/internal/api"
	apiMiddleware "github.com/private-doc-vault/docvault-ocr-service/internal/api/middleware"
	"github.com/private-doc-vault/docvault-ocr-service/internal/app"
	"github.com/private-doc-vault/docvault-ocr-service/internal/config"
	"github.com/private-doc-vault/docvault-ocr-service/internal/metrics"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/filestore"
	"github.com/private-doc-vault/docvault-ocr-service/internal/task"
)

// application holds the shared dependencies of the server process and
// releases them on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	backend *app.Backend
	events  *app.Events
	metrics *metrics.Metrics
	service *task.Service
	workers *app.Workers
	router  http.Handler
}

// newApplication connects the backend and builds the service and router.
// With embedded workers configured, a worker pool runs in this process too.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	a := &application{config: cfg, logger: logger, metrics: metrics.New()}

	var err error
	a.backend, err = app.OpenBackend(ctx, cfg, app.BackendOptions{Migrate: true}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Store.Backend, err)
	}

	files, err := filestore.NewLocal(cfg.Storage.BaseDir, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	a.events, err = app.NewEvents(cfg.Webhook, a.metrics, logger)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to set up webhooks: %w", err)
	}

	deps := task.Dependencies{
		Store:   a.backend.Store,
		Queue:   a.backend.Queue,
		Files:   files,
		Events:  a.events.Emitter,
		Metrics: a.metrics,
	}

	if cfg.Server.EmbeddedWorkers > 0 {
		deps.Processor, err = app.NewProcessor(cfg, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to build embedded workers: %w", err)
		}
		a.workers = app.NewWorkers("api", cfg.Server.EmbeddedWorkers, cfg, deps, logger)
	}

	a.service = task.NewService(deps, task.ServiceConfig{
		MaxRetries: cfg.Worker.MaxRetries,
		Languages:  app.AcceptedLanguages(cfg),
	}, logger)

	var limiter *apiMiddleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = apiMiddleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
	}

	a.router = api.NewRouter(api.RouterConfig{
		Tasks:       api.NewTaskHandler(a.service, files, cfg.Storage.MaxUploadBytes, logger),
		Health:      a.backend.Ping,
		RateLimiter: limiter,
		Logger:      logger,
	})
	return a, nil
}

// serve runs the API and metrics servers and the embedded workers until
// ctx is cancelled.
func (a *application) serve(ctx context.Context) error {
	if a.workers != nil {
		a.workers.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv := app.NewServer(":"+strconv.Itoa(a.config.Server.Port), a.router)
		return app.Serve(gctx, srv, a.config.Server.ShutdownTimeout, a.logger.With("server", "api"))
	})
	if a.config.Metrics.Addr != "" {
		g.Go(func() error {
			srv := app.NewServer(a.config.Metrics.Addr, a.metrics.Handler())
			return app.Serve(gctx, srv, a.config.Server.ShutdownTimeout, a.logger.With("server", "metrics"))
		})
	}
	return g.Wait()
}

// cleanup stops the embedded workers, drains webhooks and closes the
// backend, in that order.
func (a *application) cleanup() {
	if a.workers != nil {
		a.workers.Stop()
	}
	if a.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		if err := a.events.Close(ctx); err != nil {
			a.logger.Warn("webhook drain incomplete", "error", err)
		}
		cancel()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("failed to close backend", "error", err)
		}
	}
	a.logger.Info("server shutdown completed")
}
