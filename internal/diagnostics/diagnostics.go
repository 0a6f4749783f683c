// Package diagnostics defines where degraded-channel reports go.
package diagnostics

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one diagnostics report.
type Entry struct {
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Entry kinds.
const (
	KindFetchFailed = "fetch_failed"
	KindTransition  = "transition"
	KindSkipped     = "tick_skipped"
)

// Sink receives diagnostics. Report is called from the event loop and must
// not block.
type Sink interface {
	Report(Entry)
}

// Multi forwards each entry to every non-nil sink.
type Multi []Sink

func (m Multi) Report(e Entry) {
	for _, sink := range m {
		if sink != nil {
			sink.Report(e)
		}
	}
}

// LogSink writes entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging failures at Warn and the rest at Debug.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(e Entry) {
	level := slog.LevelDebug
	if e.Kind == KindFetchFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "diagnostics", "channel", e.Channel, "kind", e.Kind, "message", e.Message)
}

// Nop drops every entry.
type Nop struct{}

func (Nop) Report(Entry) {}
