// Package metrics exposes monitor counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neway-security/clocking-monitor/internal/model"
)

// Recorder is the metrics surface used by the monitor core.
type Recorder interface {
	TickIssued(channel string)
	TickSkipped(channel string)
	FetchFailed(channel string)
	ReconnectAttempt()
	ConnectionState(state model.ConnectionState)
	Suspended(suspended bool)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) TickIssued(string)                     {}
func (Nop) TickSkipped(string)                    {}
func (Nop) FetchFailed(string)                    {}
func (Nop) ReconnectAttempt()                     {}
func (Nop) ConnectionState(model.ConnectionState) {}
func (Nop) Suspended(bool)                        {}

// Prometheus implements Recorder with registered collectors.
type Prometheus struct {
	ticks      *prometheus.CounterVec
	failures   *prometheus.CounterVec
	reconnects prometheus.Counter
	connection prometheus.Gauge
	suspended  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clocking_monitor",
			Name:      "poll_ticks_total",
			Help:      "Poll ticks per channel by outcome (issued or skipped).",
		}, []string{"channel", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clocking_monitor",
			Name:      "fetch_failures_total",
			Help:      "Failed or malformed remote fetches per channel.",
		}, []string{"channel"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clocking_monitor",
			Name:      "stream_reconnect_attempts_total",
			Help:      "Media stream reconnect attempts.",
		}),
		connection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clocking_monitor",
			Name:      "stream_connection_state",
			Help:      "Stream state: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		}),
		suspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clocking_monitor",
			Name:      "coordinator_suspended",
			Help:      "1 while polling is suspended because no viewer is watching.",
		}),
	}
	for _, c := range []prometheus.Collector{m.ticks, m.failures, m.reconnects, m.connection, m.suspended} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) TickIssued(channel string) {
	m.ticks.WithLabelValues(channel, "issued").Inc()
}

func (m *Prometheus) TickSkipped(channel string) {
	m.ticks.WithLabelValues(channel, "skipped").Inc()
}

func (m *Prometheus) FetchFailed(channel string) {
	m.failures.WithLabelValues(channel).Inc()
}

func (m *Prometheus) ReconnectAttempt() {
	m.reconnects.Inc()
}

func (m *Prometheus) ConnectionState(state model.ConnectionState) {
	m.connection.Set(float64(state.Ordinal()))
}

func (m *Prometheus) Suspended(suspended bool) {
	if suspended {
		m.suspended.Set(1)
		return
	}
	m.suspended.Set(0)
}
