//go:build !linux

package alarm

import (
	"context"
	"errors"
	"time"
)

// BuzzerSounder is not available on non-Linux platforms.
type BuzzerSounder struct{}

// NewBuzzerSounder returns an error on non-Linux platforms.
func NewBuzzerSounder(chipName string, pin int) (*BuzzerSounder, error) {
	return nil, errors.New("buzzer: not supported on this platform (requires Linux)")
}

// Tone is not implemented on non-Linux platforms.
func (b *BuzzerSounder) Tone(ctx context.Context, d time.Duration) error {
	return errors.New("buzzer: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *BuzzerSounder) Close() error {
	return nil
}
