// Package timer schedules one-shot and repeating callbacks onto the event loop.
package timer

import (
	"time"

	"github.com/neway-security/clocking-monitor/internal/clock"
)

// PostFunc delivers a callback to the goroutine that owns monitor state.
type PostFunc func(fn func()) error

// Service arms timers on a Clock and runs their callbacks through post.
type Service struct {
	clock clock.Clock
	post  PostFunc
}

// New creates a timer service. A nil post runs callbacks inline on the
// clock's goroutine, which is what tests driving a mock clock want.
func New(c clock.Clock, post PostFunc) *Service {
	if post == nil {
		post = func(fn func()) error {
			fn()
			return nil
		}
	}
	return &Service{clock: c, post: post}
}

// Handle is a cancellable scheduled task (one-shot or periodic).
// Handles are used only from the loop goroutine.
type Handle struct {
	service   *Service
	interval  time.Duration
	fn        func()
	pending   clock.Timer
	cancelled bool
	fires     int
}

// After runs fn once after d.
func (s *Service) After(d time.Duration, fn func()) *Handle {
	h := &Handle{service: s, fn: fn}
	h.arm(d)
	return h
}

// Every runs fn every interval, first after one interval. The next tick is
// armed before fn runs, so a slow fn does not shift the cadence.
func (s *Service) Every(interval time.Duration, fn func()) *Handle {
	if interval <= 0 {
		interval = time.Second
	}
	h := &Handle{service: s, interval: interval, fn: fn}
	h.arm(interval)
	return h
}

// Cancel stops future fires. A fire already queued on the loop is dropped.
func (h *Handle) Cancel() {
	if h == nil || h.cancelled {
		return
	}
	h.cancelled = true
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
}

// Active reports whether the handle can still fire.
func (h *Handle) Active() bool {
	return h != nil && !h.cancelled && (h.interval > 0 || h.fires == 0)
}

// Fires returns how many times the callback ran.
func (h *Handle) Fires() int {
	if h == nil {
		return 0
	}
	return h.fires
}

func (h *Handle) arm(d time.Duration) {
	h.pending = h.service.clock.AfterFunc(d, func() {
		_ = h.service.post(h.fire)
	})
}

func (h *Handle) fire() {
	if h.cancelled {
		return
	}
	h.fires++
	if h.interval > 0 {
		h.arm(h.interval)
	} else {
		h.pending = nil
	}
	h.fn()
}
