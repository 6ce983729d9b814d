// Package logging provides structured logging configuration using log/slog.
//
// Loggers obtained through FromContext carry the import run ID and, for
// requests served by the sandbox, chi's request ID, so every line of one
// run (or one request) can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const ctxKeyRunID contextKey = "run_id"

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. Tests use it to capture output.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithRunID tags ctx with the import run ID.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// RunIDFromContext returns the run ID stored by ContextWithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the default logger enriched with request context.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("patient created", "line", rec.Line, "patient_id", id)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	rowLogger := logging.WithFields(ctx, "line", rec.Line)
//	rowLogger.Info("observation created")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
