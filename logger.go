package memcache

import (
	"context"
	"log/slog"
)

// Logger is the minimal surface the client needs: one INFO line per fatal
// connect cascade (P7), one WARN line per malformed-but-recoverable
// server reply. No example in this corpus wires a third-party structured
// logging library (none of the teacher's dependents import one either),
// so this wraps the standard library's slog rather than inventing an
// unneeded abstraction over a bespoke one.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	logger *slog.Logger
}

var _ Logger = slogLogger{}

// NewLogger wraps an *slog.Logger. A nil logger falls back to slog.Default().
func NewLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger}
}

func (l slogLogger) Info(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, args...)
}

func (l slogLogger) Warn(msg string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// noopLogger discards everything; used when a Config supplies no Logger.
type noopLogger struct{}

var _ Logger = noopLogger{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
