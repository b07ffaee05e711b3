//go:build linux

package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// BuzzerSounder drives an active piezo buzzer on a GPIO output line.
type BuzzerSounder struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewBuzzerSounder requests the BCM pin on the named chip as an output,
// initially low. An empty chip name selects gpiochip0.
func NewBuzzerSounder(chipName string, pin int) (*BuzzerSounder, error) {
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pin, err)
	}

	return &BuzzerSounder{chip: chip, line: line}, nil
}

// Tone drives the line high for d, then low again.
// The line is always returned low, even when ctx is cancelled mid-burst.
func (b *BuzzerSounder) Tone(ctx context.Context, d time.Duration) error {
	if err := b.line.SetValue(1); err != nil {
		return fmt.Errorf("buzzer on: %w", err)
	}
	hold(ctx, d)
	if err := b.line.SetValue(0); err != nil {
		return fmt.Errorf("buzzer off: %w", err)
	}
	return nil
}

// Close drives the line low, returns it to an input with pull-down (the Pi
// boot default) and releases the chip.
func (b *BuzzerSounder) Close() error {
	var errs []error

	if b.line != nil {
		if err := b.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("buzzer off: %w", err))
		}
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure buzzer pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
