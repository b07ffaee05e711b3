//go:build linux

package thermocouple

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// halfClock is the SCK half period. The MAX6675 allows up to 4.3MHz; the
// bit-banged clock stays far below that.
const halfClock = 10 * time.Microsecond

// conversionTime is the minimum gap the MAX6675 needs between reads.
const conversionTime = 220 * time.Millisecond

// MAX6675 bit-bangs the MAX6675 serial interface over three GPIO lines.
type MAX6675 struct {
	mu       sync.Mutex
	chip     *gpiocdev.Chip
	sck      *gpiocdev.Line
	cs       *gpiocdev.Line
	so       *gpiocdev.Line
	lastRead time.Time
}

// NewMAX6675 requests the lines on the named chip (empty selects gpiochip0).
func NewMAX6675(chipName string, pins Pins) (*MAX6675, error) {
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	m := &MAX6675{chip: chip}

	// CS idles high (deselected), SCK idles low.
	if m.cs, err = chip.RequestLine(pins.CS, gpiocdev.AsOutput(1)); err != nil {
		m.Close()
		return nil, fmt.Errorf("request CS pin %d: %w", pins.CS, err)
	}
	if m.sck, err = chip.RequestLine(pins.SCK, gpiocdev.AsOutput(0)); err != nil {
		m.Close()
		return nil, fmt.Errorf("request SCK pin %d: %w", pins.SCK, err)
	}
	if m.so, err = chip.RequestLine(pins.SO, gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		m.Close()
		return nil, fmt.Errorf("request SO pin %d: %w", pins.SO, err)
	}

	return m, nil
}

// Read clocks one 16-bit frame out of the converter.
func (m *MAX6675) Read() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wait := conversionTime - time.Since(m.lastRead); wait > 0 {
		time.Sleep(wait)
	}
	defer func() { m.lastRead = time.Now() }()

	raw, err := m.frame()
	if err != nil {
		return 0, err
	}
	return decode(raw)
}

func (m *MAX6675) frame() (uint16, error) {
	if err := m.cs.SetValue(0); err != nil {
		return 0, fmt.Errorf("select: %w", err)
	}
	defer m.cs.SetValue(1)
	time.Sleep(halfClock)

	var raw uint16
	for i := 15; i >= 0; i-- {
		if err := m.sck.SetValue(0); err != nil {
			return 0, fmt.Errorf("clock low: %w", err)
		}
		time.Sleep(halfClock)
		v, err := m.so.Value()
		if err != nil {
			return 0, fmt.Errorf("read SO: %w", err)
		}
		if v != 0 {
			raw |= 1 << uint(i)
		}
		if err := m.sck.SetValue(1); err != nil {
			return 0, fmt.Errorf("clock high: %w", err)
		}
		time.Sleep(halfClock)
	}
	if err := m.sck.SetValue(0); err != nil {
		return 0, fmt.Errorf("clock idle: %w", err)
	}
	return raw, nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults)
// before closing.
func (m *MAX6675) Close() error {
	var errs []error

	for _, l := range []struct {
		name string
		line *gpiocdev.Line
	}{{"SCK", m.sck}, {"CS", m.cs}, {"SO", m.so}} {
		if l.line == nil {
			continue
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if m.chip != nil {
		if err := m.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
