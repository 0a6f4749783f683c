// Package poller keeps the system/network health indicators in sync with
// the attendance service.
package poller

import (
	"context"
	"log/slog"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/metrics"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

// ChannelStatus is the channel name of the health check.
const ChannelStatus = "status"

// StatusClient fetches the service health report.
type StatusClient interface {
	FetchStatus(ctx context.Context) (model.StatusReport, error)
}

// Executor runs blocking work off the event loop and applies the returned
// continuation back on it.
type Executor interface {
	Go(task func(ctx context.Context) func())
}

// CameraHealth reads the camera indicator owned by the connection monitor.
type CameraHealth func() model.CameraIndicator

// StatusPoller owns the HealthSnapshot. All methods run on the event loop.
type StatusPoller struct {
	client  StatusClient
	exec    Executor
	camera  CameraHealth
	clock   clock.Clock
	sink    signals.Sink
	diag    diagnostics.Sink
	metrics metrics.Recorder
	logger  *slog.Logger

	channel  *Channel
	snapshot model.HealthSnapshot
}

// NewStatusPoller creates a poller whose snapshot starts offline.
func NewStatusPoller(
	client StatusClient,
	exec Executor,
	camera CameraHealth,
	c clock.Clock,
	sink signals.Sink,
	diag diagnostics.Sink,
	rec metrics.Recorder,
	logger *slog.Logger,
) *StatusPoller {
	if camera == nil {
		camera = func() model.CameraIndicator {
			return model.CameraIndicator{State: model.ConnectionDisconnected}
		}
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
	return &StatusPoller{
		client:   client,
		exec:     exec,
		camera:   camera,
		clock:    c,
		sink:     sink,
		diag:     diag,
		metrics:  rec,
		logger:   logger,
		channel:  NewChannel(ChannelStatus),
		snapshot: model.HealthSnapshot{System: model.SystemOffline},
	}
}

// Snapshot returns the last known health.
func (p *StatusPoller) Snapshot() model.HealthSnapshot {
	return p.snapshot
}

// Channel exposes the single-flight guard for inspection.
func (p *StatusPoller) Channel() *Channel {
	return p.channel
}

// CheckStatus emits the current camera health and, unless a health request
// is already outstanding, issues one. It reports whether a request started.
func (p *StatusPoller) CheckStatus() bool {
	camera := p.camera()
	p.snapshot.Camera = camera.Healthy
	p.sink.Emit(signals.Signal{Kind: signals.KindCamera, At: p.clock.Now(), Data: camera})

	if !p.channel.TryAcquire() {
		p.metrics.TickSkipped(ChannelStatus)
		p.logger.Debug("status check skipped; request outstanding")
		return false
	}
	p.metrics.TickIssued(ChannelStatus)

	p.exec.Go(func(ctx context.Context) func() {
		report, err := p.client.FetchStatus(ctx)
		return func() {
			p.apply(report, err)
		}
	})
	return true
}

func (p *StatusPoller) apply(report model.StatusReport, err error) {
	p.channel.Release()
	now := p.clock.Now()

	if err != nil {
		p.snapshot.System = model.SystemOffline
		p.snapshot.Network = false
		p.metrics.FetchFailed(ChannelStatus)
		p.diag.Report(diagnostics.Entry{
			Channel: ChannelStatus,
			Kind:    diagnostics.KindFetchFailed,
			Message: err.Error(),
			At:      now,
		})
	} else {
		p.snapshot.System = report.System
		p.snapshot.Network = report.Network
		p.snapshot.ObservedAt = now
	}

	p.sink.Emit(signals.Signal{
		Kind: signals.KindSystem,
		At:   now,
		Data: model.SystemIndicator{Status: p.snapshot.System, ObservedAt: p.snapshot.ObservedAt},
	})
	p.sink.Emit(signals.Signal{
		Kind: signals.KindNetwork,
		At:   now,
		Data: model.NetworkIndicator{Online: p.snapshot.Network},
	})
}
