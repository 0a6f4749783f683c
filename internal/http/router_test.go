package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neway-security/clocking-monitor/internal/clock/mock"
	"github.com/neway-security/clocking-monitor/internal/coordinator"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/http/handlers"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/remote"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

type fakeCore struct {
	mu       sync.Mutex
	state    coordinator.State
	view     model.EventFeedView
	messages []coordinator.Message
	sendErr  error
}

func (c *fakeCore) Snapshot(context.Context) (coordinator.State, error) {
	return c.state, nil
}

func (c *fakeCore) FeedView(context.Context) (model.EventFeedView, error) {
	return c.view, nil
}

func (c *fakeCore) Send(msg coordinator.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeCore) sent() []coordinator.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]coordinator.Message(nil), c.messages...)
}

type fakeJournal struct {
	limit int
}

func (j *fakeJournal) Recent(_ context.Context, limit int) ([]diagnostics.Entry, error) {
	j.limit = limit
	return []diagnostics.Entry{{Channel: "status", Kind: diagnostics.KindFetchFailed, Message: "timeout"}}, nil
}

type fakeSummary struct {
	date time.Time
	err  error
}

func (s *fakeSummary) FetchDailySummary(_ context.Context, date time.Time) (model.DailySummary, error) {
	s.date = date
	if s.err != nil {
		return model.DailySummary{}, s.err
	}
	return model.DailySummary{Date: date.Format(time.DateOnly), Rows: []model.SummaryRow{{Name: "J. Doe", FirstIn: "08:01"}}}, nil
}

type testServer struct {
	core    *fakeCore
	cache   *signals.Latest
	journal *fakeJournal
	summary *fakeSummary
	clock   *mock.Clock
	hub     *handlers.Hub
	handler http.Handler
}

func newTestServer(t *testing.T, staticDir string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		core: &fakeCore{state: coordinator.State{
			Mode:       coordinator.ModeActive,
			Connection: model.ConnectionConnected,
			Health:     model.HealthSnapshot{Camera: true, System: model.SystemOnline, Network: true},
		}},
		cache:   signals.NewLatest(),
		journal: &fakeJournal{},
		summary: &fakeSummary{},
		clock:   mock.New(time.Date(2026, 5, 4, 23, 59, 0, 0, time.UTC)),
	}
	api := handlers.New(ts.core, ts.cache, ts.journal, ts.summary, ts.clock, logger, staticDir)
	ts.hub = handlers.NewHub(ts.core, ts.cache, ts.clock, logger)
	ts.handler = NewRouter(api, ts.hub, http.NotFoundHandler())
	return ts
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStateAndFeedRoutes(t *testing.T) {
	ts := newTestServer(t, "")
	ts.core.view = model.EventFeedView{Items: []model.FeedItem{{Label: "Today, 08:15:00 AM", Today: true}}}

	rec := ts.do(http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state coordinator.State
	decodeBody(t, rec, &state)
	if state.Mode != coordinator.ModeActive || state.Connection != model.ConnectionConnected || !state.Health.Network {
		t.Fatalf("unexpected state: %+v", state)
	}

	rec = ts.do(http.MethodGet, "/api/feed")
	var view model.EventFeedView
	decodeBody(t, rec, &view)
	if len(view.Items) != 1 || view.Items[0].Label != "Today, 08:15:00 AM" {
		t.Fatalf("unexpected feed: %+v", view)
	}
}

func TestSignalsRoute(t *testing.T) {
	ts := newTestServer(t, "")
	ts.cache.Emit(signals.Signal{Kind: signals.KindNetwork, Data: true})
	ts.cache.Emit(signals.Signal{Kind: signals.KindCamera, Data: false})

	rec := ts.do(http.MethodGet, "/api/signals")
	var body struct {
		Items []signals.Signal `json:"items"`
	}
	decodeBody(t, rec, &body)
	if len(body.Items) != 2 || body.Items[0].Kind != signals.KindCamera {
		t.Fatalf("unexpected signals: %+v", body.Items)
	}
}

type renderedFeed struct {
	Kind signals.Kind        `json:"kind"`
	Data model.EventFeedView `json:"data"`
}

func feedLabel(t *testing.T, items []renderedFeed) string {
	t.Helper()
	for _, item := range items {
		if item.Kind == signals.KindFeed {
			if len(item.Data.Items) != 1 {
				t.Fatalf("unexpected feed items: %+v", item.Data.Items)
			}
			return item.Data.Items[0].Label
		}
	}
	t.Fatal("no feed signal")
	return ""
}

func TestCachedFeedLabelsFollowTheClock(t *testing.T) {
	ts := newTestServer(t, "")
	ts.cache.Emit(signals.Signal{Kind: signals.KindFeed, Data: []model.EventRecord{
		{Name: "J. Doe", Date: "2026-05-04", Time: "08:15:00", Direction: model.DirectionIn},
	}})

	signalsLabel := func() string {
		var body struct {
			Items []renderedFeed `json:"items"`
		}
		decodeBody(t, ts.do(http.MethodGet, "/api/signals"), &body)
		return feedLabel(t, body.Items)
	}
	if got := signalsLabel(); got != "Today, 08:15:00 AM" {
		t.Fatalf("label before midnight = %q", got)
	}

	ts.clock.Advance(2 * time.Minute)
	if got := signalsLabel(); got != "May 04, 2026 08:15:00 AM" {
		t.Fatalf("label after midnight = %q", got)
	}

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	defer ts.hub.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var replayed renderedFeed
	if err := conn.ReadJSON(&replayed); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if got := feedLabel(t, []renderedFeed{replayed}); got != "May 04, 2026 08:15:00 AM" {
		t.Fatalf("replayed label after midnight = %q", got)
	}
}

func TestDiagnosticsRoute(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", target: "/api/diagnostics", wantCode: http.StatusOK, wantLimit: 50},
		{name: "explicit limit", target: "/api/diagnostics?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "clamped limit", target: "/api/diagnostics?limit=100000", wantCode: http.StatusOK, wantLimit: 500},
		{name: "invalid limit", target: "/api/diagnostics?limit=abc", wantCode: http.StatusBadRequest},
		{name: "zero limit", target: "/api/diagnostics?limit=0", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			rec := ts.do(http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantLimit != 0 && ts.journal.limit != tt.wantLimit {
				t.Fatalf("expected limit %d, got %d", tt.wantLimit, ts.journal.limit)
			}
		})
	}
}

func TestSummaryRoute(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(http.MethodGet, "/api/summary?date=2026-05-04")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.summary.date.Format(time.DateOnly) != "2026-05-04" {
		t.Fatalf("unexpected date forwarded: %v", ts.summary.date)
	}

	rec = ts.do(http.MethodGet, "/api/summary?date=05/04/2026")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	ts.summary.err = errors.Join(remote.ErrRejected, errors.New("no data"))
	rec = ts.do(http.MethodGet, "/api/summary")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error.Code != "upstream_failed" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}

	ts.summary.err = fmt.Errorf("summary: %w", &remote.StatusError{Path: "/api/daily_summary", StatusCode: http.StatusInternalServerError})
	if rec := ts.do(http.MethodGet, "/api/summary"); rec.Code != http.StatusBadGateway {
		t.Fatalf("status error: expected 502, got %d", rec.Code)
	}
	ts.summary.err = context.DeadlineExceeded
	if rec := ts.do(http.MethodGet, "/api/summary"); rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout: expected 504, got %d", rec.Code)
	}
}

func TestRefreshAndResetPostMessages(t *testing.T) {
	ts := newTestServer(t, "")

	if rec := ts.do(http.MethodPost, "/api/refresh"); rec.Code != http.StatusAccepted {
		t.Fatalf("refresh: expected 202, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/api/reset"); rec.Code != http.StatusAccepted {
		t.Fatalf("reset: expected 202, got %d", rec.Code)
	}
	sent := ts.core.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if _, ok := sent[0].(coordinator.SyncRequested); !ok {
		t.Fatalf("expected SyncRequested, got %T", sent[0])
	}
	if _, ok := sent[1].(coordinator.ResetRequested); !ok {
		t.Fatalf("expected ResetRequested, got %T", sent[1])
	}

	ts.core.sendErr = errors.New("event loop stopped")
	if rec := ts.do(http.MethodPost, "/api/refresh"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once the loop stopped, got %d", rec.Code)
	}
}

func TestRefreshIsRateLimited(t *testing.T) {
	ts := newTestServer(t, "")
	var last int
	for i := 0; i < 11; i++ {
		last = ts.do(http.MethodPost, "/api/refresh").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the 11th request, got %d", last)
	}
}

func TestStaticFallbackAndIngressPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>monitor</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, dir)

	rec := ts.do(http.MethodGet, "/app.js")
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Fatalf("expected asset, got %q", rec.Body.String())
	}
	rec = ts.do(http.MethodGet, "/some/client/route")
	if !strings.Contains(rec.Body.String(), "monitor") {
		t.Fatalf("expected SPA fallback, got %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/hassio_ingress/abc/healthz", nil)
	req.Header.Set("X-Ingress-Path", "/api/hassio_ingress/abc")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("ingress healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestViewerSocket(t *testing.T) {
	ts := newTestServer(t, "")
	ts.cache.Emit(signals.Signal{Kind: signals.KindMode, Data: "active"})
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	defer ts.hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var replayed signals.Signal
	if err := conn.ReadJSON(&replayed); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replayed.Kind != signals.KindMode {
		t.Fatalf("expected replayed mode signal, got %q", replayed.Kind)
	}

	waitFor(t, func() bool { return ts.hub.Viewers() == 1 })
	ts.hub.Emit(signals.Signal{Kind: signals.KindNetwork, Data: true})
	var live signals.Signal
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if live.Kind != signals.KindNetwork {
		t.Fatalf("expected network signal, got %q", live.Kind)
	}

	if err := conn.WriteJSON(map[string]any{"type": "visibility", "visible": false}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "resize", "width": 800, "height": 600}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.Close()

	waitFor(t, func() bool { return len(ts.core.sent()) == 4 })
	sent := ts.core.sent()
	joined, ok := sent[0].(coordinator.ViewerJoined)
	if !ok {
		t.Fatalf("expected ViewerJoined first, got %T", sent[0])
	}
	if vis, ok := sent[1].(coordinator.VisibilityChanged); !ok || vis.Visible || vis.Viewer != joined.Viewer {
		t.Fatalf("unexpected visibility message %+v", sent[1])
	}
	if size, ok := sent[2].(coordinator.Resized); !ok || size.Width != 800 {
		t.Fatalf("unexpected resize message %+v", sent[2])
	}
	if left, ok := sent[3].(coordinator.ViewerLeft); !ok || left.Viewer != joined.Viewer {
		t.Fatalf("unexpected leave message %+v", sent[3])
	}
	waitFor(t, func() bool { return ts.hub.Viewers() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
