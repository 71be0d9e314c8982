// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package schedule runs functions on a fixed interval with explicit start and
// stop handles.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Func is one run of a task. It should return once ctx is done.
type Func func(ctx context.Context)

// Option configures a Task.
type Option func(*Task)

// WithImmediateRun makes Start run the task once before the first tick.
func WithImmediateRun() Option {
	return func(t *Task) { t.immediate = true }
}

// WithLogger sets the task's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) { t.logger = logger }
}

// Task calls a function every interval until stopped. Runs never overlap: a
// tick that arrives while a run is in progress is dropped.
type Task struct {
	name      string
	interval  time.Duration
	fn        Func
	immediate bool
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time

	runMu sync.Mutex
}

// New creates a stopped task.
func New(name string, interval time.Duration, fn Func, opts ...Option) *Task {
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Start launches the task loop. The loop ends when ctx is cancelled or Stop
// is called.
func (t *Task) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return oops.Code("INVALID_INTERVAL").
			With("task", t.name).
			With("interval", t.interval).
			Errorf("task %s: interval must be positive", t.name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return oops.Code("TASK_RUNNING").
			With("task", t.name).
			Errorf("task %s already started", t.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(loopCtx, t.done)

	t.logger.Debug("task started", "task", t.name, "interval", t.interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return. Stopping a
// task that is not running is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.logger.Debug("task stopped", "task", t.name)
}

// RunOnce runs the task synchronously, outside the timer. It waits for any
// run already in progress.
func (t *Task) RunOnce(ctx context.Context) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.run(ctx)
}

// LastRun returns when the most recent run started, or the zero time.
func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if t.immediate {
		t.tryRun(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tryRun(ctx)
		}
	}
}

func (t *Task) tryRun(ctx context.Context) {
	if !t.runMu.TryLock() {
		t.logger.Warn("task still running, skipping tick", "task", t.name)
		return
	}
	defer t.runMu.Unlock()
	t.run(ctx)
}

// run must be called with runMu held.
func (t *Task) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	t.lastRun = time.Now()
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn(ctx)
}
