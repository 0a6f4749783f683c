// Package feed keeps the rolling recognition-event feed in sync with the
// attendance service.
package feed

import (
	"context"
	"log/slog"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/diagnostics"
	"github.com/neway-security/clocking-monitor/internal/metrics"
	"github.com/neway-security/clocking-monitor/internal/model"
	"github.com/neway-security/clocking-monitor/internal/poller"
	"github.com/neway-security/clocking-monitor/internal/remote"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

const (
	// ChannelEvents is the channel name of the event feed.
	ChannelEvents = "events"
	// DefaultLimit is the number of recent events requested per refresh.
	DefaultLimit = 10
)

// LogsClient fetches recent events.
type LogsClient interface {
	FetchLogs(ctx context.Context, query remote.LogQuery) ([]model.EventRecord, error)
}

// Synchronizer owns the feed records. All methods run on the event loop.
type Synchronizer struct {
	client  LogsClient
	exec    poller.Executor
	clock   clock.Clock
	sink    signals.Sink
	diag    diagnostics.Sink
	metrics metrics.Recorder
	logger  *slog.Logger

	channel *poller.Channel
	records []model.EventRecord
	loaded  bool
}

// NewSynchronizer creates a synchronizer with an empty feed.
func NewSynchronizer(
	client LogsClient,
	exec poller.Executor,
	c clock.Clock,
	sink signals.Sink,
	diag diagnostics.Sink,
	rec metrics.Recorder,
	logger *slog.Logger,
) *Synchronizer {
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
	return &Synchronizer{
		client:  client,
		exec:    exec,
		clock:   c,
		sink:    sink,
		diag:    diag,
		metrics: rec,
		logger:  logger,
		channel: poller.NewChannel(ChannelEvents),
	}
}

// Channel exposes the single-flight guard for inspection.
func (s *Synchronizer) Channel() *poller.Channel {
	return s.channel
}

// Records returns the current records in service order.
func (s *Synchronizer) Records() []model.EventRecord {
	return append([]model.EventRecord(nil), s.records...)
}

// Loaded reports whether any refresh has succeeded yet.
func (s *Synchronizer) Loaded() bool {
	return s.loaded
}

// View projects the current records at the clock's now.
func (s *Synchronizer) View() model.EventFeedView {
	return Project(s.records, s.clock.Now())
}

// Refresh requests the most recent limit events unless a request is already
// outstanding. It reports whether a request started.
func (s *Synchronizer) Refresh(limit int) bool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if !s.channel.TryAcquire() {
		s.metrics.TickSkipped(ChannelEvents)
		s.logger.Debug("feed refresh skipped; request outstanding")
		return false
	}
	s.metrics.TickIssued(ChannelEvents)

	s.exec.Go(func(ctx context.Context) func() {
		records, err := s.client.FetchLogs(ctx, remote.LogQuery{Limit: limit})
		return func() {
			s.apply(records, err)
		}
	})
	return true
}

// apply replaces the whole feed on success. A failure leaves the previous
// feed on display.
func (s *Synchronizer) apply(records []model.EventRecord, err error) {
	s.channel.Release()
	now := s.clock.Now()

	if err != nil {
		s.metrics.FetchFailed(ChannelEvents)
		s.diag.Report(diagnostics.Entry{
			Channel: ChannelEvents,
			Kind:    diagnostics.KindFetchFailed,
			Message: err.Error(),
			At:      now,
		})
		return
	}

	s.records = append([]model.EventRecord(nil), records...)
	s.loaded = true
	// Labels depend on the wall clock, so the signal carries records and
	// collaborators render them with Render when they are shown.
	s.sink.Emit(signals.Signal{Kind: signals.KindFeed, At: now, Data: append([]model.EventRecord(nil), s.records...)})
}
