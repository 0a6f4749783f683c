package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neway-security/clocking-monitor/internal/clock"
	"github.com/neway-security/clocking-monitor/internal/coordinator"
	"github.com/neway-security/clocking-monitor/internal/feed"
	"github.com/neway-security/clocking-monitor/internal/signals"
)

const (
	viewerSendBuffer = 32
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxViewerMessage = 4096
)

// viewerMessage is what a dashboard viewer sends over the socket.
type viewerMessage struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Hub attaches dashboard viewers over websockets. Each viewer's presence and
// visibility feed the coordinator, and every emitted signal is broadcast to
// all viewers. Hub is a signals.Sink; Emit never blocks.
type Hub struct {
	core     Core
	cache    SignalCache
	clock    clock.Clock
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[string]*viewer
	closed  bool
}

type viewer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.send) })
}

// NewHub creates a hub. cache replays the last signals to new viewers; feed
// signals are rendered against c when they are sent.
func NewHub(core Core, cache SignalCache, c clock.Clock, logger *slog.Logger) *Hub {
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		core:    core,
		cache:   cache,
		clock:   c,
		logger:  logger,
		viewers: map[string]*viewer{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Viewers returns the number of attached viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) Emit(s signals.Signal) {
	payload, err := json.Marshal(feed.Render(s, h.clock.Now()))
	if err != nil {
		h.logger.Warn("signal encode failed", "kind", s.Kind, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.viewers {
		select {
		case v.send <- payload:
		default:
			h.logger.Debug("viewer too slow; dropping signal", "viewer", v.id, "kind", s.Kind)
		}
	}
}

// ServeWS upgrades the request and runs the viewer session until the
// connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	v := &viewer{id: uuid.NewString(), conn: conn, send: make(chan []byte, viewerSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.viewers[v.id] = v
	h.mu.Unlock()

	h.logger.Info("viewer attached", "viewer", v.id, "remote", r.RemoteAddr)
	h.replay(v)
	h.send(coordinator.ViewerJoined{Viewer: v.id})

	go h.writeLoop(v)
	h.readLoop(v)

	h.detach(v)
	h.send(coordinator.ViewerLeft{Viewer: v.id})
	h.logger.Info("viewer detached", "viewer", v.id)
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()
	for _, v := range viewers {
		_ = v.conn.Close()
	}
}

func (h *Hub) replay(v *viewer) {
	if h.cache == nil {
		return
	}
	now := h.clock.Now()
	for _, s := range h.cache.Snapshot() {
		payload, err := json.Marshal(feed.Render(s, now))
		if err != nil {
			continue
		}
		select {
		case v.send <- payload:
		default:
			return
		}
	}
}

func (h *Hub) detach(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v.id)
	h.mu.Unlock()
	v.close()
	_ = v.conn.Close()
}

func (h *Hub) send(msg coordinator.Message) {
	if err := h.core.Send(msg); err != nil {
		h.logger.Debug("coordinator unavailable", "err", err)
	}
}

func (h *Hub) readLoop(v *viewer) {
	v.conn.SetReadLimit(maxViewerMessage)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg viewerMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("viewer read failed", "viewer", v.id, "err", err)
			}
			return
		}
		switch msg.Type {
		case "visibility":
			h.send(coordinator.VisibilityChanged{Viewer: v.id, Visible: msg.Visible})
		case "resize":
			h.send(coordinator.Resized{Viewer: v.id, Width: msg.Width, Height: msg.Height})
		case "refresh":
			h.send(coordinator.SyncRequested{})
		default:
			h.logger.Debug("ignoring viewer message", "viewer", v.id, "type", msg.Type)
		}
	}
}

func (h *Hub) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = v.conn.Close()
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = v.conn.Close()
				return
			}
		}
	}
}
