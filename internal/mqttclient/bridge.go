package mqttclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/neway-security/clocking-monitor/internal/signals"
)

// Publisher is the subset of Client the bridge publishes through.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber is the subset of Client the bridge receives commands through.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Command is a remote instruction received on <base>/cmd.
type Command string

const (
	CommandRefresh Command = "refresh"
	CommandReset   Command = "reset"
)

// Bridge is a signals.Sink publishing every signal, retained, on
// <base>/<kind>. Emit never blocks; a full queue drops the signal.
type Bridge struct {
	pub       Publisher
	baseTopic string
	queue     chan signals.Signal
	logger    *slog.Logger
	dropped   atomic.Int64
}

func NewBridge(pub Publisher, baseTopic string, buffer int, logger *slog.Logger) *Bridge {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		pub:       pub,
		baseTopic: strings.TrimSuffix(baseTopic, "/"),
		queue:     make(chan signals.Signal, buffer),
		logger:    logger,
	}
}

func (b *Bridge) Emit(s signals.Signal) {
	select {
	case b.queue <- s:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many signals were discarded on a full queue.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Topic returns the topic a signal kind is published on.
func (b *Bridge) Topic(kind signals.Kind) string {
	return b.baseTopic + "/" + string(kind)
}

// Run publishes queued signals until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-b.queue:
			payload, err := json.Marshal(s)
			if err != nil {
				b.logger.Warn("mqtt payload encode failed", "kind", s.Kind, "err", err)
				continue
			}
			if err := b.pub.Publish(b.Topic(s.Kind), 0, true, payload); err != nil {
				b.logger.Warn("mqtt publish failed", "topic", b.Topic(s.Kind), "err", err)
			}
		}
	}
}

// ListenCommands subscribes to <base>/cmd and forwards recognised commands.
func (b *Bridge) ListenCommands(sub Subscriber, handle func(Command)) error {
	topic := b.baseTopic + "/cmd"
	return sub.Subscribe(topic, 1, func(_ string, payload []byte) {
		cmd := Command(strings.ToLower(strings.TrimSpace(string(payload))))
		switch cmd {
		case CommandRefresh, CommandReset:
			handle(cmd)
		default:
			b.logger.Warn("ignoring unknown mqtt command", "payload", string(payload))
		}
	})
}
