package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/neway-security/clocking-monitor/internal/clock"
)

// Clock is a manually advanced clock. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*timer
}

type timer struct {
	clock   *Clock
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// New creates a clock frozen at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &timer{clock: c, due: c.now.Add(d), seq: c.seq, fn: fn}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due,
// including timers armed by callbacks within the window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		next := c.popDue(target)
		if next == nil {
			break
		}
		next.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Pending returns the delays, relative to now, of timers not yet fired or stopped.
func (c *Clock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.pending))
	for _, t := range c.pending {
		out = append(out, t.due.Sub(c.now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Clock) popDue(target time.Time) *timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := -1
	for i, t := range c.pending {
		if t.due.After(target) {
			continue
		}
		if index < 0 || t.due.Before(c.pending[index].due) ||
			(t.due.Equal(c.pending[index].due) && t.seq < c.pending[index].seq) {
			index = i
		}
	}
	if index < 0 {
		return nil
	}
	t := c.pending[index]
	c.pending = append(c.pending[:index], c.pending[index+1:]...)
	t.fired = true
	if t.due.After(c.now) {
		c.now = t.due
	}
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, p := range t.clock.pending {
		if p == t {
			t.clock.pending = append(t.clock.pending[:i], t.clock.pending[i+1:]...)
			break
		}
	}
	return true
}
