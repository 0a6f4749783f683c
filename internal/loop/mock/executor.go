package mock

import (
	"context"
	"sync"
)

// Executor queues tasks instead of running them, so tests decide when each
// request completes. Completing a task runs it and its continuation inline,
// the way the event loop would.
type Executor struct {
	mu      sync.Mutex
	tasks   []func(ctx context.Context) func()
	started int
}

func (e *Executor) Go(task func(ctx context.Context) func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	e.started++
}

// Pending returns the number of tasks not yet completed.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Started returns the number of tasks ever submitted.
func (e *Executor) Started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// CompleteNext runs the oldest pending task. It returns false when none is pending.
func (e *Executor) CompleteNext() bool {
	e.mu.Lock()
	if len(e.tasks) == 0 {
		e.mu.Unlock()
		return false
	}
	task := e.tasks[0]
	e.tasks = e.tasks[1:]
	e.mu.Unlock()

	if next := task(context.Background()); next != nil {
		next()
	}
	return true
}

// CompleteAll runs pending tasks, including ones submitted while completing,
// until none is left.
func (e *Executor) CompleteAll() {
	for e.CompleteNext() {
	}
}

// Inline runs every task immediately on Go.
type Inline struct{}

func (Inline) Go(task func(ctx context.Context) func()) {
	if next := task(context.Background()); next != nil {
		next()
	}
}
