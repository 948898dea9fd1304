// Package logger provides structured logging for the service.
//
// It uses the standard library log/slog package with a JSON handler and
// configurable level, and carries task or request scoped loggers in contexts.
package logger
