package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/private-doc-vault/docvault-ocr-service/internal/api/middleware"
	"github.com/private-doc-vault/docvault-ocr-service/internal/api/shared"
)

// healthTimeout bounds the backend check made by /health.
const healthTimeout = 2 * time.Second

// HealthCheck reports whether the shared task store is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	Tasks  *TaskHandler
	Health HealthCheck
	// RateLimiter is applied to the /api routes when set.
	RateLimiter *apiMiddleware.RateLimiter
	Logger      *slog.Logger
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Post("/tasks", cfg.Tasks.CreateTask)
		r.Get("/tasks/{id}", cfg.Tasks.GetTask)
		r.Delete("/tasks/{id}", cfg.Tasks.CancelTask)
		r.Get("/tasks/{id}/result", cfg.Tasks.GetResult)
		r.Get("/tasks/{id}/progress", cfg.Tasks.GetProgress)

		r.Post("/batches", cfg.Tasks.CreateBatch)
		r.Get("/batches/{id}", cfg.Tasks.GetBatch)

		r.Get("/queue/stats", cfg.Tasks.GetQueueStats)

		r.Get("/dead-letters", cfg.Tasks.ListDeadLetters)
		r.Post("/dead-letters/{id}/retry", cfg.Tasks.RetryDeadLetter)
	})

	r.Get("/health", healthHandler(cfg.Health))

	return r
}

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Task store unavailable", err)
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
	}
}
