package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/neway-security/clocking-monitor/internal/clock/mock"
	"github.com/neway-security/clocking-monitor/internal/feed"
	"github.com/neway-security/clocking-monitor/internal/loop"
	loopmock "github.com/neway-security/clocking-monitor/internal/loop/mock"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/poller"
	"github.com/neway-security/clocking-monitor/internal/remote"
	"github.com/neway-security/clocking-monitor/internal/signals"
	"github.com/neway-security/clocking-monitor/internal/stream"
	"github.com/neway-security/clocking-monitor/internal/timer"
	"github.com/neway-security/clocking-monitor/internal/visibility"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type inlineRunner struct{}

func (inlineRunner) Post(fn func()) error {
	fn()
	return nil
}

func (inlineRunner) Call(_ context.Context, fn func()) error {
	fn()
	return nil
}

type fakeService struct {
	mu       sync.Mutex
	statuses int
	logs     int
}

func (f *fakeService) FetchStatus(context.Context) (model.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return model.StatusReport{System: model.SystemOnline, Network: true}, nil
}

func (f *fakeService) FetchLogs(_ context.Context, q remote.LogQuery) ([]model.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs++
	return []model.EventRecord{{Name: "J. Doe", Date: "2026-05-04", Time: "07:59:00", Direction: model.DirectionIn}}, nil
}

func (f *fakeService) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses, f.logs
}

type recordingSource struct {
	mu    sync.Mutex
	loads []string
}

func (s *recordingSource) Load(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
}

func (s *recordingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loads)
}

type fixture struct {
	clock   *mock.Clock
	exec    *loopmock.Executor
	service *fakeService
	source  *recordingSource
	signals *signals.Recorder
	coord   *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := mock.New(testStart)
	exec := &loopmock.Executor{}
	service := &fakeService{}
	source := &recordingSource{}
	rec := &signals.Recorder{}
	timers := timer.New(c, nil)

	monitor := stream.NewMonitor(
		stream.Options{StreamURL: "http://dashboard.local/video_feed", MaxAttempts: 3, BaseDelay: 2 * time.Second},
		source, timers, c, rec, nil, nil, logger,
	)
	statusPoller := poller.NewStatusPoller(service, exec, monitor.Indicator, c, rec, nil, nil, logger)
	feedSync := feed.NewSynchronizer(service, exec, c, rec, nil, nil, logger)

	coord := New(Options{StatusInterval: 60 * time.Second, RefreshInterval: 30 * time.Second, FeedLimit: 10}, Deps{
		Runner:   inlineRunner{},
		Timers:   timers,
		Clock:    c,
		Poller:   statusPoller,
		Feed:     feedSync,
		Monitor:  monitor,
		Observer: visibility.NewObserver(true),
		Sink:     rec,
		Logger:   logger,
	})
	return &fixture{clock: c, exec: exec, service: service, source: source, signals: rec, coord: coord}
}

func (f *fixture) send(t *testing.T, msg Message) {
	t.Helper()
	if err := f.coord.Send(msg); err != nil {
		t.Fatalf("Send(%T) error = %v", msg, err)
	}
}

func (f *fixture) expectCounts(t *testing.T, statuses, logs int) {
	t.Helper()
	f.exec.CompleteAll()
	gotStatuses, gotLogs := f.service.counts()
	if gotStatuses != statuses || gotLogs != logs {
		t.Fatalf("requests status=%d logs=%d, want %d/%d", gotStatuses, gotLogs, statuses, logs)
	}
}

func TestStartSyncsLoadsStreamAndArmsHandles(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()

	f.expectCounts(t, 1, 1)
	if f.source.count() != 1 || f.source.loads[0] != "http://dashboard.local/video_feed" {
		t.Fatalf("stream loads = %v", f.source.loads)
	}

	f.clock.Advance(30 * time.Second)
	f.expectCounts(t, 1, 2)
	f.clock.Advance(30 * time.Second)
	f.expectCounts(t, 2, 3)

	if f.coord.Mode() != ModeActive {
		t.Fatalf("Mode() = %s", f.coord.Mode())
	}
	// Start is idempotent.
	f.coord.Start()
	f.expectCounts(t, 2, 3)
}

func TestHiddenSuspendsAndVisibleResumesFromZero(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	f.send(t, ViewerJoined{Viewer: "kiosk"})
	f.expectCounts(t, 1, 1)

	f.clock.Advance(10 * time.Second)
	f.send(t, VisibilityChanged{Viewer: "kiosk", Visible: false})
	if f.coord.Mode() != ModeSuspended {
		t.Fatalf("Mode() = %s, want suspended", f.coord.Mode())
	}
	f.clock.Advance(10 * time.Minute)
	f.expectCounts(t, 1, 1)

	f.send(t, VisibilityChanged{Viewer: "kiosk", Visible: true})
	f.expectCounts(t, 2, 2)

	f.clock.Advance(29 * time.Second)
	f.expectCounts(t, 2, 2)
	f.clock.Advance(time.Second)
	f.expectCounts(t, 2, 3)

	modes := f.signals.OfKind(signals.KindMode)
	want := []Mode{ModeActive, ModeSuspended, ModeActive}
	if len(modes) != len(want) {
		t.Fatalf("mode signals = %d, want %d", len(modes), len(want))
	}
	for i, s := range modes {
		if s.Data != want[i] {
			t.Fatalf("mode signal %d = %v, want %v", i, s.Data, want[i])
		}
	}
}

func TestSuspendLetsInFlightRequestsApply(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	f.send(t, ViewerJoined{Viewer: "kiosk"})
	f.send(t, ViewerLeft{Viewer: "kiosk"})
	if f.coord.Mode() != ModeSuspended {
		t.Fatalf("Mode() = %s, want suspended", f.coord.Mode())
	}

	f.exec.CompleteAll()
	state, err := f.coord.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !state.FeedLoaded || state.Health.System != model.SystemOnline || !state.Health.Network {
		t.Fatalf("state = %+v, want applied results", state)
	}
}

func TestSyncRequestedRespectsSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	if f.exec.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", f.exec.Pending())
	}
	f.send(t, SyncRequested{})
	if f.exec.Started() != 2 {
		t.Fatalf("started = %d, want outstanding requests to suppress the sync", f.exec.Started())
	}
	f.exec.CompleteAll()
	f.send(t, SyncRequested{})
	f.expectCounts(t, 2, 2)
}

func TestStreamMessagesDriveMonitor(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()

	f.send(t, StreamFailed{URL: "http://dashboard.local/video_feed", Err: errors.New("stalled")})
	state, _ := f.coord.Snapshot(context.Background())
	if state.Connection != model.ConnectionConnecting || state.Attempts != 1 {
		t.Fatalf("after failure state = %+v", state)
	}

	f.send(t, StreamLoaded{URL: f.source.loads[len(f.source.loads)-1]})
	state, _ = f.coord.Snapshot(context.Background())
	if state.Connection != model.ConnectionConnected || state.Attempts != 0 {
		t.Fatalf("after load state = %+v", state)
	}
}

func TestResetRequestedRearmsMonitor(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	for i := 0; i < 3; i++ {
		f.send(t, StreamFailed{})
		f.clock.Advance(time.Duration(i+1) * 2 * time.Second)
	}
	state, _ := f.coord.Snapshot(context.Background())
	if state.Connection != model.ConnectionFailed {
		t.Fatalf("state = %s, want failed", state.Connection)
	}

	loads := f.source.count()
	f.send(t, ResetRequested{})
	state, _ = f.coord.Snapshot(context.Background())
	if state.Connection != model.ConnectionDisconnected || state.Attempts != 0 {
		t.Fatalf("after reset state = %+v", state)
	}
	if f.source.count() != loads+1 {
		t.Fatalf("reset did not reload the stream")
	}
}

func TestResizedGoesToHookOnly(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	var got []Resized
	f.coord.OnResize = func(r Resized) { got = append(got, r) }

	f.send(t, Resized{Viewer: "kiosk", Width: 1920, Height: 1080})
	if len(got) != 1 || got[0].Width != 1920 {
		t.Fatalf("resize hook calls = %+v", got)
	}
	if f.exec.Started() != 2 {
		t.Fatalf("resize must not issue requests, started = %d", f.exec.Started())
	}
}

func TestCoordinatorOnRealLoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := loop.New(16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	c := mock.New(testStart)
	timers := timer.New(c, l.Post)
	service := &fakeService{}
	source := &recordingSource{}
	monitor := stream.NewMonitor(stream.Options{StreamURL: "http://dashboard.local/video_feed"}, source, timers, c, nil, nil, nil, logger)
	coord := New(Options{}, Deps{
		Runner:  l,
		Timers:  timers,
		Clock:   c,
		Poller:  poller.NewStatusPoller(service, l, monitor.Indicator, c, nil, nil, nil, logger),
		Feed:    feed.NewSynchronizer(service, l, c, nil, nil, nil, logger),
		Monitor: monitor,
		Logger:  logger,
	})
	if err := coord.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		state, err := coord.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if state.FeedLoaded && state.Health.System == model.SystemOnline {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never settled: %+v", state)
		}
		time.Sleep(5 * time.Millisecond)
	}

	view, err := coord.FeedView(context.Background())
	if err != nil || len(view.Items) != 1 {
		t.Fatalf("FeedView() = %+v, %v", view, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := coord.Send(SyncRequested{}); !errors.Is(err, loop.ErrStopped) {
		t.Fatalf("Send() after stop error = %v, want ErrStopped", err)
	}
}

func TestStopCancelsHandles(t *testing.T) {
	f := newFixture(t)
	f.coord.Start()
	f.exec.CompleteAll()
	f.coord.Stop()

	if pending := f.clock.Pending(); len(pending) != 0 {
		t.Fatalf("expected no armed timers after Stop, got %v", pending)
	}
	f.clock.Advance(5 * time.Minute)
	f.expectCounts(t, 1, 1)
}
