package photovec

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/lensmark/photovec/ann"
)

// Logger wraps slog.Logger with photovec-specific helpers so operations log
// with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. If handler is nil, a
// text handler to stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// LogUpsert logs one corpus upsert.
func (l *Logger) LogUpsert(ctx context.Context, photos, newCount, updated int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"photos", photos,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "upsert completed",
		"photos", photos,
		"new", newCount,
		"updated", updated,
	)
}

// LogSearch logs one search with its selection outcome.
func (l *Logger) LogSearch(ctx context.Context, topK, found int, meta Meta, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"top_k", topK,
			"backend", meta.Backend,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"top_k", topK,
		"results", found,
		"backend", meta.Backend,
		"fallback", meta.Fallback,
	)
}

// LogBuild logs one backend build.
func (l *Logger) LogBuild(ctx context.Context, kind ann.Kind, built bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"kind", kind,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"kind", kind,
		"built", built,
	)
}

// LogMirror logs a mirror or restore pass.
func (l *Logger) LogMirror(ctx context.Context, op string, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed", "error", err)
		return
	}
	l.InfoContext(ctx, op+" completed")
}
