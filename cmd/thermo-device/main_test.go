package main

import (
	"testing"

	"github.com/sweeney/thermo-dash/internal/thermocouple"
)

func TestOpenReaderSimulated(t *testing.T) {
	r, err := openReader(true, "", thermocouple.DefaultPins)
	if err != nil {
		t.Fatalf("openReader: %v", err)
	}
	defer r.Close()

	if _, ok := r.(*thermocouple.Simulated); !ok {
		t.Fatalf("got %T, want *thermocouple.Simulated", r)
	}
	if _, err := r.Read(); err != nil {
		t.Errorf("read: %v", err)
	}
}

func TestOpenReaderMissingChip(t *testing.T) {
	if _, err := openReader(false, "gpiochip-does-not-exist", thermocouple.DefaultPins); err == nil {
		t.Error("expected error for missing chip")
	}
}
