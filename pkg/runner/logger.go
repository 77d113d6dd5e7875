package runner

import (
	"context"
	"log/slog"
)

// Logger is the logging seam the runner depends on, so embedding
// applications aren't forced onto slog specifically.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// slogLogger adapts *slog.Logger to the Logger interface, the ambient
// logging stack named in the teacher's pkg/middleware/logging.go.
type slogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger wraps a *slog.Logger as a runner.Logger. A nil logger falls
// back to slog.Default().
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{inner: logger}
}

func (l slogLogger) Info(msg string, keysAndValues ...any) {
	l.inner.InfoContext(context.Background(), msg, keysAndValues...)
}

func (l slogLogger) Error(msg string, keysAndValues ...any) {
	l.inner.ErrorContext(context.Background(), msg, keysAndValues...)
}

func (l slogLogger) Debug(msg string, keysAndValues ...any) {
	l.inner.DebugContext(context.Background(), msg, keysAndValues...)
}
