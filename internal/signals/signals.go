// Package signals carries UI state from the monitor core to rendering
// collaborators (websocket viewers, MQTT, the JSON API).
package signals

import (
	"sort"
	"sync"
	"time"
)

// Kind names one UI signal stream.
type Kind string

const (
	KindCamera    Kind = "camera"
	KindSystem    Kind = "system"
	KindNetwork   Kind = "network"
	KindFeed      Kind = "feed"
	KindReconnect Kind = "reconnect"
	KindMode      Kind = "mode"
)

// Signal is one emitted UI update.
type Signal struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Sink consumes signals. Emit is called from the event loop and must not block.
type Sink interface {
	Emit(Signal)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Signal)

func (f SinkFunc) Emit(s Signal) { f(s) }

// Fanout forwards each signal to every non-nil sink in order.
type Fanout []Sink

func (f Fanout) Emit(s Signal) {
	for _, sink := range f {
		if sink != nil {
			sink.Emit(s)
		}
	}
}

// Discard drops every signal.
var Discard Sink = SinkFunc(func(Signal) {})

// Latest keeps the last signal of each kind. It is read from HTTP handlers,
// so unlike the core it is safe for concurrent use.
type Latest struct {
	mu    sync.RWMutex
	items map[Kind]Signal
}

// NewLatest creates an empty last-value cache.
func NewLatest() *Latest {
	return &Latest{items: map[Kind]Signal{}}
}

func (l *Latest) Emit(s Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[s.Kind] = s
}

// Get returns the last signal of kind.
func (l *Latest) Get(kind Kind) (Signal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.items[kind]
	return s, ok
}

// Snapshot returns the last signal of every kind, ordered by kind.
func (l *Latest) Snapshot() []Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Signal, 0, len(l.items))
	for _, s := range l.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Recorder collects signals in memory. Tests use it to assert emissions.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *Recorder) Emit(s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

// All returns every recorded signal.
func (r *Recorder) All() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.signals...)
}

// OfKind returns recorded signals of one kind.
func (r *Recorder) OfKind(kind Kind) []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, 0)
	for _, s := range r.signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
