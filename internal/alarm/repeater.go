package alarm

import (
	"context"
	"sync"
	"time"
)

// Repeater runs fn immediately and then once per interval until stopped.
type Repeater struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRepeater creates a stopped repeater.
func NewRepeater(interval time.Duration, fn func(ctx context.Context)) *Repeater {
	return &Repeater{interval: interval, fn: fn}
}

// Start launches the task. Returns false if it is already running.
func (r *Repeater) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.loop(ctx, done)
	return true
}

// Stop cancels the task and waits for it to exit. No call to fn starts after
// Stop returns. Safe to call when not running.
func (r *Repeater) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the task is active.
func (r *Repeater) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Repeater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// A tick racing with cancellation must not start another run.
		if ctx.Err() != nil {
			return
		}
		r.fn(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
