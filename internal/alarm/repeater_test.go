package alarm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRepeaterRunsImmediatelyAndRepeats(t *testing.T) {
	var n atomic.Int32
	r := NewRepeater(10*time.Millisecond, func(context.Context) { n.Add(1) })

	if !r.Start() {
		t.Fatal("expected Start to succeed")
	}
	defer r.Stop()

	waitFor(t, "first run", func() bool { return n.Load() >= 1 })
	waitFor(t, "repeat", func() bool { return n.Load() >= 3 })
}

func TestRepeaterStartTwice(t *testing.T) {
	r := NewRepeater(time.Hour, func(context.Context) {})
	if !r.Start() {
		t.Fatal("first Start should succeed")
	}
	if r.Start() {
		t.Error("second Start should report already running")
	}
	r.Stop()
	if r.Running() {
		t.Error("expected stopped")
	}
	if !r.Start() {
		t.Error("Start after Stop should succeed")
	}
	r.Stop()
}

func TestRepeaterStopIsFinal(t *testing.T) {
	var n atomic.Int32
	r := NewRepeater(2*time.Millisecond, func(context.Context) { n.Add(1) })
	r.Start()
	waitFor(t, "some runs", func() bool { return n.Load() >= 3 })

	r.Stop()
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() != after {
		t.Errorf("runs after Stop: %d -> %d", after, n.Load())
	}

	// Idempotent
	r.Stop()
	r.Stop()
}

func TestRepeaterStopInterruptsRun(t *testing.T) {
	started := make(chan struct{})
	r := NewRepeater(time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	r.Start()
	<-started

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the running burst")
	}
}
