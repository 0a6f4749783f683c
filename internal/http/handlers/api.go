package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/coordinator"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

// Core is the monitor core as seen from HTTP: reads go through the event
// loop and writes are posted to it as messages.
type Core interface {
	Snapshot(ctx context.Context) (coordinator.State, error)
	FeedView(ctx context.Context) (model.EventFeedView, error)
	Send(msg coordinator.Message) error
}

// SignalCache exposes the last value of every UI signal.
type SignalCache interface {
	Snapshot() []signals.Signal
}

// DiagnosticsReader reads the persisted diagnostics journal.
type DiagnosticsReader interface {
	Recent(ctx context.Context, limit int) ([]diagnostics.Entry, error)
}

// SummaryClient fetches the daily attendance summary from the remote service.
type SummaryClient interface {
	FetchDailySummary(ctx context.Context, date time.Time) (model.DailySummary, error)
}

// API groups HTTP handlers and dependencies.
type API struct {
	core        Core
	signals     SignalCache
	diagnostics DiagnosticsReader
	summary     SummaryClient
	clock       clock.Clock
	logger      *slog.Logger
	staticDir   string
}

// New creates HTTP handlers with explicit dependencies. diagnostics may be
// nil when no journal is configured.
func New(
	core Core,
	cache SignalCache,
	diag DiagnosticsReader,
	summary SummaryClient,
	c clock.Clock,
	logger *slog.Logger,
	staticDir string,
) *API {
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		core:        core,
		signals:     cache,
		diagnostics: diag,
		summary:     summary,
		clock:       c,
		logger:      logger,
		staticDir:   staticDir,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Static serves frontend assets and SPA fallback.
func (a *API) Static(w http.ResponseWriter, r *http.Request) {
	if a.staticDir == "" {
		writeError(w, http.StatusNotFound, "frontend_missing", "Frontend dist not found")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}
	cleanPath := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	fullPath := filepath.Join(a.staticDir, cleanPath)
	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		http.ServeFile(w, r, fullPath)
		return
	}
	http.ServeFile(w, r, filepath.Join(a.staticDir, "index.html"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
