package shared

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// ContextKey is the type of request context keys set by this package.
type ContextKey string

// TraceIDKey is the key for the trace ID in the request context.
const TraceIDKey ContextKey = "traceID"

// TraceIDHeader carries a caller-provided trace ID and echoes it back.
const TraceIDHeader = "X-Request-ID"

// validTraceID accepts caller IDs that are safe to log and echo.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// SetTraceID adds a trace ID to the context. A well-formed incoming ID is
// kept so logs correlate with the caller; otherwise a new one is generated.
func SetTraceID(ctx context.Context, incoming string) context.Context {
	traceID := incoming
	if !validTraceID.MatchString(traceID) {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}
