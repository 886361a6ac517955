package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type Logger struct {
	*slog.Logger
}

var isDebug = os.Getenv("DEBUG")

// NewLogger creates a Logger writing to stderr. DEBUG=1 enables debug level
// and source locations.
func NewLogger() *Logger {
	level := slog.LevelInfo
	if isDebug == "1" {
		level = slog.LevelDebug
	}
	return New(os.Stderr, level)
}

// New creates a Logger writing to w at the given level
func New(w io.Writer, level slog.Level) *Logger {
	handler := NewHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug && isDebug == "1",
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTestLogger returns a Logger that discards everything
func NewTestLogger() *Logger {
	return New(io.Discard, slog.LevelDebug)
}

// withError enhances log attributes with error details if present
func withError(err error, attrs []slog.Attr) []slog.Attr {
	if err == nil {
		return attrs
	}

	return append(attrs, slog.String("error", err.Error()))
}

// log records the caller of the exported method as the source, not this file
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if !l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, log and the exported method
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}

// Info logs a message at INFO level without context
func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), slog.LevelInfo, msg, attrs...)
}

// InfoContext logs a message at INFO level with context
func (l *Logger) InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs a message at WARN level without context
func (l *Logger) Warn(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), slog.LevelWarn, msg, attrs...)
}

// WarnContext logs a message at WARN level with context
func (l *Logger) WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs a message at ERROR level with error details without context
func (l *Logger) Error(msg string, err error, attrs ...slog.Attr) {
	l.log(context.Background(), slog.LevelError, msg, withError(err, attrs)...)
}

// ErrorContext logs a message at ERROR level with error details and context
func (l *Logger) ErrorContext(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, withError(err, attrs)...)
}

// Fatal logs at ERROR level and exits the process
func (l *Logger) Fatal(msg string, err error, attrs ...slog.Attr) {
	l.log(context.Background(), slog.LevelError, msg, withError(err, attrs)...)
	os.Exit(1)
}

// Debug logs a message at DEBUG level without context
func (l *Logger) Debug(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), slog.LevelDebug, msg, attrs...)
}

// DebugContext logs a message at DEBUG level with context
func (l *Logger) DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs...)
}

// With creates a new Logger with the given attributes that will be included in all log messages
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}
