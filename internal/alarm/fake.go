package alarm

import (
	"context"
	"sync"
	"time"
)

// FakeSounder records tone bursts for test assertions.
type FakeSounder struct {
	mu     sync.Mutex
	tones  int
	active bool
	closed bool

	// ToneError, if set, is returned by every Tone call.
	ToneError error
}

// NewFakeSounder creates a FakeSounder.
func NewFakeSounder() *FakeSounder {
	return &FakeSounder{}
}

// Tone records a burst and holds for d.
func (f *FakeSounder) Tone(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.tones++
	err := f.ToneError
	f.active = true
	f.mu.Unlock()

	hold(ctx, d)

	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	return err
}

// Close marks the sounder as closed.
func (f *FakeSounder) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Tones returns the number of bursts started so far.
func (f *FakeSounder) Tones() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tones
}

// Active reports whether a burst is in progress.
func (f *FakeSounder) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Closed reports whether Close was called.
func (f *FakeSounder) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
