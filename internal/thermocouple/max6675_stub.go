//go:build !linux

package thermocouple

import "errors"

// MAX6675 is not available on non-Linux platforms.
type MAX6675 struct{}

// NewMAX6675 returns an error on non-Linux platforms.
func NewMAX6675(chipName string, pins Pins) (*MAX6675, error) {
	return nil, errors.New("thermocouple: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (m *MAX6675) Read() (float64, error) {
	return 0, errors.New("thermocouple: not supported")
}

// Close is not implemented on non-Linux platforms.
func (m *MAX6675) Close() error {
	return nil
}
