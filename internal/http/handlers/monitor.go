package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neway-security/clocking-monitor/internal/coordinator"
	"github.com/neway-security/clocking-monitor/internal/feed"
	"github.com/neway-security/clocking-monitor/internal/remote"
)

const (
	defaultDiagnosticsLimit = 50
	maxDiagnosticsLimit     = 500
)

// State returns connection state, retry count, health snapshot and mode.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	state, err := a.core.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Feed renders the event feed at request time.
func (a *API) Feed(w http.ResponseWriter, r *http.Request) {
	view, err := a.core.FeedView(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Signals returns the last value of every UI signal, with the feed rendered
// at request time.
func (a *API) Signals(w http.ResponseWriter, _ *http.Request) {
	now := a.clock.Now()
	items := a.signals.Snapshot()
	for i := range items {
		items[i] = feed.Render(items[i], now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Diagnostics lists recent journal rows, newest first.
func (a *API) Diagnostics(w http.ResponseWriter, r *http.Request) {
	if a.diagnostics == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "Diagnostics journal not configured")
		return
	}
	limit := defaultDiagnosticsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(value, maxDiagnosticsLimit)
	}
	items, err := a.diagnostics.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Summary proxies the daily attendance summary. date defaults to today.
func (a *API) Summary(w http.ResponseWriter, r *http.Request) {
	date := a.clock.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	summary, err := a.summary.FetchDailySummary(r.Context(), date)
	if err != nil {
		switch {
		case errors.Is(err, remote.ErrStatus), errors.Is(err, remote.ErrRejected), errors.Is(err, remote.ErrMalformed):
			writeError(w, http.StatusBadGateway, "upstream_failed", err.Error())
		default:
			writeError(w, http.StatusGatewayTimeout, "upstream_unreachable", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Refresh triggers an immediate health check and feed refresh.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.post(w, coordinator.SyncRequested{})
}

// Reset re-arms the connection monitor and reloads the stream.
func (a *API) Reset(w http.ResponseWriter, _ *http.Request) {
	a.post(w, coordinator.ResetRequested{})
}

func (a *API) post(w http.ResponseWriter, msg coordinator.Message) {
	if err := a.core.Send(msg); err != nil {
		writeError(w, http.StatusServiceUnavailable, "core_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
