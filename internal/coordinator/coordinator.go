// Package coordinator drives the periodic health checks and feed refreshes,
// suspends them while nobody is looking, and routes stream and viewer events
// to the components that own them.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/feed"
	"github.com/neway-security/clocking-monitor/internal/metrics"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/poller"
	"github.com/neway-security/clocking-monitor/internal/signals"
	"github.com/neway-security/clocking-monitor/internal/stream"
	"github.com/neway-security/clocking-monitor/internal/timer"
	"github.com/neway-security/clocking-monitor/internal/visibility"
)

// Mode is the scheduling mode.
type Mode string

const (
	ModeActive    Mode = "active"
	ModeSuspended Mode = "suspended"
)

const (
	DefaultStatusInterval  = 60 * time.Second
	DefaultRefreshInterval = 30 * time.Second
)

// Runner executes closures on the event loop.
type Runner interface {
	Post(fn func()) error
	Call(ctx context.Context, fn func()) error
}

// Options configures cadence and feed size.
type Options struct {
	StatusInterval  time.Duration
	RefreshInterval time.Duration
	FeedLimit       int
}

// Deps are the loop-owned components the coordinator schedules.
type Deps struct {
	Runner   Runner
	Timers   *timer.Service
	Clock    clock.Clock
	Poller   *poller.StatusPoller
	Feed     *feed.Synchronizer
	Monitor  *stream.Monitor
	Observer *visibility.Observer
	Sink     signals.Sink
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// State is a point-in-time view of the core, safe to hand to other goroutines.
type State struct {
	Mode        Mode                  `json:"mode"`
	Connection  model.ConnectionState `json:"connection"`
	Attempts    int                   `json:"attempts"`
	MaxAttempts int                   `json:"maxAttempts"`
	Health      model.HealthSnapshot  `json:"health"`
	Viewers     int                   `json:"viewers"`
	FeedLoaded  bool                  `json:"feedLoaded"`
}

// Coordinator owns the two periodic handles and the scheduling mode.
type Coordinator struct {
	opts Options
	deps Deps

	// OnResize is invoked on the loop for every Resized message.
	OnResize func(Resized)

	started       bool
	mode          Mode
	statusHandle  *timer.Handle
	refreshHandle *timer.Handle
}

// New creates a coordinator in active mode.
func New(opts Options, deps Deps) *Coordinator {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = feed.DefaultLimit
	}
	if deps.Sink == nil {
		deps.Sink = signals.Discard
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = visibility.NewObserver(true)
	}
	return &Coordinator{
		opts:     opts,
		deps:     deps,
		OnResize: func(Resized) {},
		mode:     ModeActive,
	}
}

// Start runs the initial health check, feed refresh and stream load, then
// arms both periodic handles. It must run on the loop; use Begin from
// other goroutines.
func (c *Coordinator) Start() {
	if c.started {
		return
	}
	c.started = true
	c.deps.Logger.Info("coordinator starting",
		"status_interval", c.opts.StatusInterval,
		"refresh_interval", c.opts.RefreshInterval,
		"feed_limit", c.opts.FeedLimit,
	)
	c.sync()
	c.deps.Monitor.Start()
	if c.deps.Observer.Visible() {
		c.arm()
	} else {
		c.mode = ModeSuspended
		c.deps.Metrics.Suspended(true)
	}
	c.emitMode()
}

// Stop cancels both periodic handles. Requests already in flight still
// complete. Loop only.
func (c *Coordinator) Stop() {
	c.statusHandle.Cancel()
	c.refreshHandle.Cancel()
	c.statusHandle = nil
	c.refreshHandle = nil
	c.started = false
}

// Begin posts Start to the loop.
func (c *Coordinator) Begin() error {
	return c.deps.Runner.Post(c.Start)
}

// Send posts msg to the loop for dispatch.
func (c *Coordinator) Send(msg Message) error {
	return c.deps.Runner.Post(func() {
		c.dispatch(msg)
	})
}

// Snapshot reads the current state through the loop.
func (c *Coordinator) Snapshot(ctx context.Context) (State, error) {
	var state State
	err := c.deps.Runner.Call(ctx, func() {
		state = c.state()
	})
	return state, err
}

// FeedView renders the event feed through the loop at call time.
func (c *Coordinator) FeedView(ctx context.Context) (model.EventFeedView, error) {
	var view model.EventFeedView
	err := c.deps.Runner.Call(ctx, func() {
		view = c.deps.Feed.View()
	})
	return view, err
}

// Mode returns the scheduling mode. Loop only.
func (c *Coordinator) Mode() Mode {
	return c.mode
}

func (c *Coordinator) state() State {
	indicator := c.deps.Monitor.Indicator()
	return State{
		Mode:        c.mode,
		Connection:  indicator.State,
		Attempts:    indicator.Attempt,
		MaxAttempts: indicator.MaxAttempts,
		Health:      c.deps.Poller.Snapshot(),
		Viewers:     c.deps.Observer.Viewers(),
		FeedLoaded:  c.deps.Feed.Loaded(),
	}
}

func (c *Coordinator) dispatch(msg Message) {
	switch m := msg.(type) {
	case VisibilityChanged:
		visible, changed := c.deps.Observer.Report(m.Viewer, m.Visible)
		c.onVisibility(visible, changed)
	case ViewerJoined:
		visible, changed := c.deps.Observer.Join(m.Viewer)
		c.onVisibility(visible, changed)
	case ViewerLeft:
		visible, changed := c.deps.Observer.Leave(m.Viewer)
		c.onVisibility(visible, changed)
	case Resized:
		c.OnResize(m)
	case StreamLoaded:
		c.deps.Monitor.OnStreamConnected()
	case StreamFailed:
		if m.Err != nil {
			c.deps.Logger.Debug("stream failed", "url", m.URL, "err", m.Err)
		}
		c.deps.Monitor.OnStreamError()
	case ResetRequested:
		c.deps.Logger.Info("connection monitor reset requested")
		c.deps.Monitor.Reset()
		c.deps.Monitor.Start()
	case SyncRequested:
		c.sync()
	default:
		c.deps.Logger.Warn("unknown coordinator message", "type", fmt.Sprintf("%T", msg))
	}
}

func (c *Coordinator) onVisibility(visible, changed bool) {
	if !changed || !c.started {
		return
	}
	if visible {
		c.resume()
	} else {
		c.suspend()
	}
}

func (c *Coordinator) suspend() {
	if c.mode == ModeSuspended {
		return
	}
	c.statusHandle.Cancel()
	c.refreshHandle.Cancel()
	c.statusHandle = nil
	c.refreshHandle = nil
	c.mode = ModeSuspended
	c.deps.Metrics.Suspended(true)
	c.deps.Logger.Info("polling suspended; no visible viewer")
	c.emitMode()
}

func (c *Coordinator) resume() {
	if c.mode == ModeActive {
		return
	}
	c.mode = ModeActive
	c.deps.Metrics.Suspended(false)
	c.deps.Logger.Info("polling resumed")
	c.sync()
	c.arm()
	c.emitMode()
}

func (c *Coordinator) sync() {
	c.deps.Poller.CheckStatus()
	c.deps.Feed.Refresh(c.opts.FeedLimit)
}

func (c *Coordinator) arm() {
	c.statusHandle.Cancel()
	c.refreshHandle.Cancel()
	c.statusHandle = c.deps.Timers.Every(c.opts.StatusInterval, func() {
		c.deps.Poller.CheckStatus()
	})
	c.refreshHandle = c.deps.Timers.Every(c.opts.RefreshInterval, func() {
		c.deps.Feed.Refresh(c.opts.FeedLimit)
	})
}

func (c *Coordinator) emitMode() {
	c.deps.Sink.Emit(signals.Signal{Kind: signals.KindMode, At: c.deps.Clock.Now(), Data: c.mode})
}
