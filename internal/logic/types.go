// Package logic contains the pure core of the dashboard: the telemetry window
// and the threshold alert state machine.
// This package has NO external dependencies (no sockets, timers, audio or OS).
// Time is always injectable via time.Time values on the samples.
package logic

import "time"

// ConnState is the lifecycle state of the device connection.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
)

// AlertState is the state of the threshold alarm.
type AlertState string

const (
	AlertSilent   AlertState = "SILENT"
	AlertAlarming AlertState = "ALARMING"
)

// Sample is one ingested reading paired with the threshold in effect when it arrived.
type Sample struct {
	Timestamp   time.Time
	Temperature float64
	Threshold   float64
}

// Exceeds reports whether the sample is at or above its threshold.
func (s Sample) Exceeds() bool {
	return s.Temperature >= s.Threshold
}

// Transition describes an alert state change.
type Transition struct {
	From   AlertState
	To     AlertState
	Forced bool    // true when caused by losing the data source
	Sample *Sample // sample that caused it; nil for forced transitions
}

// Changed reports whether the transition moved the machine to a new state.
func (t Transition) Changed() bool {
	return t.From != t.To
}
