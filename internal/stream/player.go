package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStalled means the stream delivered no bytes within the idle timeout.
var ErrStalled = errors.New("stream stalled")

// ErrEnded means the server closed the stream.
var ErrEnded = errors.New("stream ended")

// LoadError reports a non-success HTTP status for the media URL.
type LoadError struct {
	URL        string
	StatusCode int
}

func (e *LoadError) Error() string {
	if e == nil {
		return "stream load failed"
	}
	return fmt.Sprintf("stream load %s: status %d", e.URL, e.StatusCode)
}

// Events receives load outcomes. Callbacks run on player goroutines.
type Events struct {
	Loaded func(url string)
	Failed func(url string, err error)
}

// Player is the media element: it holds one HTTP session to the current
// URL and reports the first received bytes as a load and any failure after
// that as an error. Loading a new URL abandons the previous session.
type Player struct {
	client *http.Client
	idle   time.Duration
	events Events
	logger *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	stop       context.CancelFunc
	generation int
	cancel     context.CancelFunc
	sessions   sync.WaitGroup
}

// NewPlayer creates a player. The client must not set a total Timeout,
// since a healthy MJPEG response never ends; stalls are caught by idle.
func NewPlayer(client *http.Client, idle time.Duration, events Events, logger *slog.Logger) *Player {
	if client == nil {
		client = &http.Client{}
	}
	if idle <= 0 {
		idle = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Player{client: client, idle: idle, events: events, logger: logger, ctx: ctx, stop: stop}
}

// Load replaces the current session with one for url. It does not block.
func (p *Player) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel

	p.sessions.Add(1)
	go p.run(ctx, p.generation, url)
}

// Close abandons the current session and waits for it to exit.
func (p *Player) Close() {
	p.mu.Lock()
	p.stop()
	p.mu.Unlock()
	p.sessions.Wait()
}

func (p *Player) run(ctx context.Context, generation int, url string) {
	defer p.sessions.Done()

	readCtx, stallCancel := context.WithCancel(ctx)
	defer stallCancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(p.idle, func() {
		stalled.Store(true)
		stallCancel()
	})
	defer watchdog.Stop()

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		if stalled.Load() {
			err = ErrStalled
		}
		p.report(generation, func() {
			p.logger.Debug("stream session failed", "url", url, "err", err)
			if p.events.Failed != nil {
				p.events.Failed(url, err)
			}
		})
	}

	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, url, nil)
	if err != nil {
		fail(err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		fail(&LoadError{URL: url, StatusCode: resp.StatusCode})
		return
	}

	buf := make([]byte, 32*1024)
	loaded := false
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			watchdog.Reset(p.idle)
			if !loaded {
				loaded = true
				p.report(generation, func() {
					if p.events.Loaded != nil {
						p.events.Loaded(url)
					}
				})
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrEnded
			}
			fail(err)
			return
		}
	}
}

// report runs fn only if generation is still the current session.
func (p *Player) report(generation int, fn func()) {
	p.mu.Lock()
	current := generation == p.generation && p.ctx.Err() == nil
	p.mu.Unlock()
	if current {
		fn()
	}
}
