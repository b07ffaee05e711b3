package thermocouple

import (
	"math/rand"
	"sync"
)

// Simulated is a random-walk Reader for running without hardware.
type Simulated struct {
	mu   sync.Mutex
	rng  *rand.Rand
	temp float64
	step float64
	min  float64
	max  float64
}

// NewSimulated starts a walk at start that moves at most step per read and
// stays within [start-50, start+50].
func NewSimulated(seed int64, start, step float64) *Simulated {
	return &Simulated{
		rng:  rand.New(rand.NewSource(seed)),
		temp: start,
		step: step,
		min:  start - 50,
		max:  start + 50,
	}
}

// Read advances the walk and returns the new value, quantised to the
// MAX6675's 0.25°C resolution.
func (s *Simulated) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.temp += (s.rng.Float64()*2 - 1) * s.step
	if s.temp < s.min {
		s.temp = s.min
	}
	if s.temp > s.max {
		s.temp = s.max
	}
	return float64(int(s.temp*4)) / 4, nil
}

func (s *Simulated) Close() error { return nil }
