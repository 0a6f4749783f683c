package logging

import (
	"io"
	"log/slog"
	"os"
)

const serviceName = "clocking-monitor"

// New creates a process logger with JSON output on stdout.
func New(level slog.Level) *slog.Logger {
	return NewTo(os.Stdout, level)
}

// NewTo creates a JSON logger writing to w. Every record carries the
// service name.
func NewTo(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", serviceName)
}

// Component tags logger with the subsystem emitting the records.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
