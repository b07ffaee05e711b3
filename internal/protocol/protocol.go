// Package protocol implements the JSON-over-WebSocket wire format spoken by the
// temperature device and the plaintext commands it accepts.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
)

// DefaultAddress is the device's default IP address (port 80).
const DefaultAddress = "192.168.1.200"

// Path is the WebSocket path served by the device.
const Path = "/ws"

// ErrMalformed is returned for frames that are not valid protocol messages.
var ErrMalformed = errors.New("malformed frame")

// Kind identifies the type of a device frame.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindStatus      Kind = "status"
	KindRecording   Kind = "recording"
	KindData        Kind = "data"
	KindError       Kind = "error"
)

// Recording reply values.
const (
	RecordingStarted = "started"
	RecordingStopped = "stopped"
)

// Frame is one decoded device-to-dashboard message.
type Frame struct {
	Kind        Kind
	Temperature float64   // KindTemperature
	Status      string    // KindStatus
	Recording   string    // KindRecording
	Data        []float64 // KindData
	Error       string    // KindError
}

// Parse decodes a single text frame.
// Returns ErrMalformed (wrapped) for invalid JSON, a non-numeric temperature,
// or an object with none of the known keys.
func Parse(b []byte) (Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if v, ok := raw["temperature"]; ok {
		var t *float64
		if err := json.Unmarshal(v, &t); err != nil || t == nil {
			return Frame{}, fmt.Errorf("%w: temperature is not a number", ErrMalformed)
		}
		if math.IsNaN(*t) || math.IsInf(*t, 0) {
			return Frame{}, fmt.Errorf("%w: temperature is not finite", ErrMalformed)
		}
		return Frame{Kind: KindTemperature, Temperature: *t}, nil
	}

	if v, ok := raw["status"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Frame{}, fmt.Errorf("%w: status: %v", ErrMalformed, err)
		}
		return Frame{Kind: KindStatus, Status: s}, nil
	}

	if v, ok := raw["recording"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Frame{}, fmt.Errorf("%w: recording: %v", ErrMalformed, err)
		}
		return Frame{Kind: KindRecording, Recording: s}, nil
	}

	if v, ok := raw["data"]; ok {
		var d []float64
		if err := json.Unmarshal(v, &d); err != nil {
			return Frame{}, fmt.Errorf("%w: data: %v", ErrMalformed, err)
		}
		if d == nil {
			d = []float64{}
		}
		return Frame{Kind: KindData, Data: d}, nil
	}

	if v, ok := raw["error"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Frame{}, fmt.Errorf("%w: error: %v", ErrMalformed, err)
		}
		return Frame{Kind: KindError, Error: s}, nil
	}

	return Frame{}, fmt.Errorf("%w: no known field", ErrMalformed)
}

// Endpoint returns the WebSocket URL for a device address.
// The address may carry a port; an empty address selects DefaultAddress.
func Endpoint(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		address = DefaultAddress
	}
	address = strings.TrimPrefix(address, "ws://")
	address = strings.TrimSuffix(address, Path)
	if host, port, err := net.SplitHostPort(address); err == nil && port == "80" {
		address = host
	}
	return "ws://" + address + Path
}
