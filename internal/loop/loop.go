// Package loop runs callbacks one at a time on a single goroutine.
//
// Every piece of monitor state is mutated only from inside the loop, so the
// state owners need no locks. Blocking work (HTTP requests) runs on worker
// goroutines via Go and hands its result back as a continuation.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned when posting to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Loop is a single-consumer mailbox of callbacks.
type Loop struct {
	mailbox chan func()
	done    chan struct{}
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	workers sync.WaitGroup
}

// New creates a loop with the given mailbox capacity.
func New(capacity int, logger *slog.Logger) *Loop {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		mailbox: make(chan func(), capacity),
		done:    make(chan struct{}),
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Run drains the mailbox until ctx is cancelled, then waits for workers
// started through Go to return.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	defer func() {
		close(l.done)
		l.workers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.mailbox:
			l.invoke(fn)
		}
	}
}

// Post queues fn for execution on the loop. It blocks while the mailbox is
// full and fails once the loop has exited. Never call Post from inside the
// loop with a full mailbox; use Go for work that needs to report back.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.mailbox <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Go runs task on a worker goroutine and posts the continuation it returns
// back to the loop. A nil continuation is skipped.
func (l *Loop) Go(task func(ctx context.Context) func()) {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		next := task(ctx)
		if next == nil {
			return
		}
		if err := l.Post(next); err != nil {
			l.logger.Debug("dropping task result", "err", err)
		}
	}()
}

// Call runs fn on the loop and waits for it to finish. It is the read path
// for collaborators outside the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("event loop callback panicked", "panic", recovered)
		}
	}()
	fn()
}
