package middleware

import (
	"log/slog"
	"net/http"

	"github.com/private-doc-vault/docvault-ocr-service/internal/api/shared"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

// NewTraceMiddleware adds a trace ID to the request context and a logger
// carrying it. A valid incoming X-Request-ID is reused, and the trace ID is
// echoed in the response header.
// This middleware should be applied early in the middleware chain to ensure
// that all subsequent handlers have access to the trace ID.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context(), r.Header.Get(shared.TraceIDHeader))
			traceID := shared.GetTraceID(ctx)
			w.Header().Set(shared.TraceIDHeader, traceID)

			log := base.With(slog.String("trace_id", traceID))
			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
