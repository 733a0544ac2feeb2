// Package logging provides structured logging configuration using log/slog.
//
// Console output goes to stdout as text or JSON. When a log file is
// configured, every record is also appended to it as JSON, which is the
// persistent log operators read after a notification. Run IDs and chi
// request IDs are carried through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"
	slogmulti "github.com/samber/slog-multi"
)

type ctxKey struct{}

// Setup configures the global slog logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// The returned cleanup closes the log file, if one was opened.
func Setup(level, format, file string) (func() error, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	console := consoleHandler(os.Stdout, format, opts)

	if file == "" {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(console))
		return func() error { return nil }, errors.Wrapf(err, "open log file %s", file)
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(console, slog.NewJSONHandler(f, opts))))
	return f.Close, nil
}

// NewWithWriters builds a fan-out logger over arbitrary writers. Used in tests.
func NewWithWriters(console, file io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slogmulti.Fanout(
		consoleHandler(console, format, opts),
		slog.NewJSONHandler(file, opts),
	))
}

func consoleHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
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

// ContextWithRunID stores a pipeline run ID in ctx.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

// RunID returns the run ID stored in ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns a logger enriched with the run ID and, for HTTP
// requests, the chi request ID.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("table loaded", "rows", n)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := RunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	log := logging.WithFields(ctx, "file", base, "table", table)
//	log.Info("gate passed")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
