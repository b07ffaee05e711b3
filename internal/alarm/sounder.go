// Package alarm drives the audible threshold alarm: the alert state machine,
// the repeating tone task and the devices that make the noise.
package alarm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Sounder produces one tone burst.
type Sounder interface {
	// Tone sounds for d, returning early if ctx is cancelled.
	Tone(ctx context.Context, d time.Duration) error

	// Close releases the audio device.
	Close() error
}

// BellSounder rings the terminal bell (BEL) on a writer, usually stdout.
type BellSounder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellSounder creates a sounder that writes BEL to w.
func NewBellSounder(w io.Writer) *BellSounder {
	return &BellSounder{w: w}
}

// Tone writes a BEL and holds for d so bursts and gaps alternate.
func (b *BellSounder) Tone(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	_, err := b.w.Write([]byte{'\a'})
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("bell: %w", err)
	}
	return hold(ctx, d)
}

// Close is a no-op.
func (b *BellSounder) Close() error {
	return nil
}

// hold waits for d or until ctx is done.
func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
