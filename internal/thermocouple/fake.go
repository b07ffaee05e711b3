package thermocouple

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted temperatures.
type FakeReader struct {
	mu sync.Mutex

	// Values are returned in order, one per Read. Once exhausted the last
	// value repeats.
	Values []float64

	// ReadError, if set, is returned by Read.
	ReadError error

	Closed bool

	index int
	reads int
}

func NewFakeReader(values ...float64) *FakeReader {
	return &FakeReader{Values: values}
}

// Read returns the next scripted value.
func (f *FakeReader) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}

	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// SetError changes the error returned by subsequent reads.
func (f *FakeReader) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Reads reports how many times Read was called.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds to the first value.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.index = 0
	f.reads = 0
	f.Closed = false
	f.mu.Unlock()
}
