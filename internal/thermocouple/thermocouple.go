// Package thermocouple reads temperatures from a MAX6675 K-type thermocouple
// converter, with simulated and fake readers for running without hardware.
package thermocouple

import (
	"errors"
	"fmt"
)

// Reader reads one temperature in degrees Celsius.
type Reader interface {
	Read() (float64, error)

	// Close releases hardware resources.
	Close() error
}

// Pins are the BCM line offsets the MAX6675 is wired to.
type Pins struct {
	SCK int // serial clock (output)
	CS  int // chip select, active low (output)
	SO  int // serial data out of the MAX6675 (input)
}

// DefaultPins matches the SPI0 header pins on a Raspberry Pi.
var DefaultPins = Pins{SCK: 11, CS: 8, SO: 9}

// ErrOpenCircuit is returned when no thermocouple is attached.
var ErrOpenCircuit = errors.New("thermocouple: open circuit")

// openBit is set by the MAX6675 when the thermocouple input is open.
const openBit = 0x4

// decode converts a raw 16-bit MAX6675 frame to degrees Celsius.
// Bits 14..3 carry the reading in 0.25°C steps; bit 15 is a dummy sign bit
// that is always zero.
func decode(raw uint16) (float64, error) {
	if raw&0x8000 != 0 {
		return 0, fmt.Errorf("thermocouple: bad frame %#04x", raw)
	}
	if raw&openBit != 0 {
		return 0, ErrOpenCircuit
	}
	return float64(raw>>3) * 0.25, nil
}
