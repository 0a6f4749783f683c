// Package stream owns media stream connectivity: the reconnect state machine
// and the HTTP transport that loads the MJPEG feed.
package stream

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/metrics"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/signals"
	"github.com/neway-security/clocking-monitor/internal/timer"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Source is the media element whose URL the monitor reassigns.
type Source interface {
	Load(url string)
}

// Scheduler arms one-shot timers whose callbacks run on the event loop.
type Scheduler interface {
	After(d time.Duration, fn func()) *timer.Handle
}

// Options configures a Monitor.
type Options struct {
	StreamURL   string
	MaxAttempts int
	BaseDelay   time.Duration
}

// Monitor is the connection health state machine. All methods must be
// called from the event loop.
type Monitor struct {
	opts      Options
	source    Source
	scheduler Scheduler
	clock     clock.Clock
	sink      signals.Sink
	diag      diagnostics.Sink
	metrics   metrics.Recorder
	logger    *slog.Logger

	state          model.ConnectionState
	attempts       int
	epoch          int
	lastToken      int64
	failedReported bool
}

// NewMonitor creates a monitor in the Disconnected state.
func NewMonitor(
	opts Options,
	source Source,
	scheduler Scheduler,
	c clock.Clock,
	sink signals.Sink,
	diag diagnostics.Sink,
	rec metrics.Recorder,
	logger *slog.Logger,
) *Monitor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if sink == nil {
		sink = signals.Discard
	}
	if diag == nil {
		diag = diagnostics.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		opts:      opts,
		source:    source,
		scheduler: scheduler,
		clock:     c,
		sink:      sink,
		diag:      diag,
		metrics:   rec,
		logger:    logger,
		state:     model.ConnectionDisconnected,
	}
}

// State returns the current connection state.
func (m *Monitor) State() model.ConnectionState {
	return m.state
}

// Attempts returns the retry counter.
func (m *Monitor) Attempts() int {
	return m.attempts
}

// CameraHealthy is the camera-health value read by the status poller.
func (m *Monitor) CameraHealthy() bool {
	return m.state.Healthy()
}

// Indicator returns the camera indicator payload for the current state.
func (m *Monitor) Indicator() model.CameraIndicator {
	return model.CameraIndicator{
		State:       m.state,
		Healthy:     m.state.Healthy(),
		Attempt:     m.attempts,
		MaxAttempts: m.opts.MaxAttempts,
	}
}

// Start assigns the plain stream URL to the source. Reconnects only begin
// after an actual stream error.
func (m *Monitor) Start() {
	m.source.Load(m.opts.StreamURL)
}

// OnStreamConnected handles a successful load of the media source.
func (m *Monitor) OnStreamConnected() {
	m.attempts = 0
	m.failedReported = false
	m.transition(model.ConnectionConnected)
}

// OnStreamError handles a media load failure. While a retry sequence is in
// flight the error is absorbed by it; after Failed it is ignored until Reset.
func (m *Monitor) OnStreamError() {
	down := m.Indicator()
	down.Healthy = false
	m.sink.Emit(signals.Signal{Kind: signals.KindCamera, At: m.clock.Now(), Data: down})
	switch m.state {
	case model.ConnectionConnected, model.ConnectionDisconnected:
		m.epoch++
		m.transition(model.ConnectionConnecting)
		m.retry(m.epoch)
	}
}

// Reset clears the retry counter and re-arms the monitor after Failed.
// Timers armed before the reset become stale.
func (m *Monitor) Reset() {
	m.epoch++
	m.attempts = 0
	m.failedReported = false
	m.transition(model.ConnectionDisconnected)
}

// retry runs one step of the reconnect sequence. The armed timer is never
// cancelled: when it fires it re-checks state and epoch, so a timer that
// outlived its sequence (stream connected, monitor reset, or a newer
// sequence started) does nothing.
func (m *Monitor) retry(epoch int) {
	if epoch != m.epoch || m.state != model.ConnectionConnecting {
		return
	}
	if m.attempts >= m.opts.MaxAttempts {
		m.fail()
		return
	}

	m.attempts++
	m.metrics.ReconnectAttempt()
	target := CacheBust(m.opts.StreamURL, m.nextToken())
	m.logger.Info("reconnecting stream", "attempt", m.attempts, "max_attempts", m.opts.MaxAttempts)
	m.source.Load(target)
	m.emitCamera()
	m.sink.Emit(signals.Signal{
		Kind: signals.KindReconnect,
		At:   m.clock.Now(),
		Data: model.ReconnectProgress{
			Attempt:     m.attempts,
			MaxAttempts: m.opts.MaxAttempts,
			Message:     fmt.Sprintf("Reconnecting to camera (attempt %d/%d)...", m.attempts, m.opts.MaxAttempts),
		},
	})

	m.scheduler.After(m.Backoff(m.attempts), func() {
		m.retry(epoch)
	})
}

func (m *Monitor) fail() {
	m.transition(model.ConnectionFailed)
	if m.failedReported {
		return
	}
	m.failedReported = true
	m.logger.Warn("stream reconnection failed", "attempts", m.attempts)
	m.sink.Emit(signals.Signal{
		Kind: signals.KindReconnect,
		At:   m.clock.Now(),
		Data: model.ReconnectProgress{
			Attempt:     m.attempts,
			MaxAttempts: m.opts.MaxAttempts,
			Failed:      true,
			Message:     fmt.Sprintf("Camera reconnection failed after %d attempts", m.attempts),
		},
	})
}

// Backoff is the delay armed after attempt k: BaseDelay × k.
func (m *Monitor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return m.opts.BaseDelay * time.Duration(attempt)
}

func (m *Monitor) transition(next model.ConnectionState) {
	prev := m.state
	m.state = next
	m.metrics.ConnectionState(next)
	if prev != next {
		m.diag.Report(diagnostics.Entry{
			Channel: "stream",
			Kind:    diagnostics.KindTransition,
			Message: string(prev) + " -> " + string(next),
			At:      m.clock.Now(),
		})
	}
	m.emitCamera()
}

func (m *Monitor) emitCamera() {
	m.sink.Emit(signals.Signal{Kind: signals.KindCamera, At: m.clock.Now(), Data: m.Indicator()})
}

// nextToken returns a strictly increasing millisecond timestamp.
func (m *Monitor) nextToken() int64 {
	token := m.clock.Now().UnixMilli()
	if token <= m.lastToken {
		token = m.lastToken + 1
	}
	m.lastToken = token
	return token
}

// CacheBust appends t=<token> to raw so the transport treats the load as a
// fresh request. An existing t parameter is replaced.
func CacheBust(raw string, token int64) string {
	u, err := url.Parse(raw)
	if err != nil {
		sep := "?"
		for i := 0; i < len(raw); i++ {
			if raw[i] == '?' {
				sep = "&"
				break
			}
		}
		return raw + sep + "t=" + strconv.FormatInt(token, 10)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(token, 10))
	u.RawQuery = q.Encode()
	return u.String()
}
