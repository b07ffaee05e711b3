// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
)

// Topic is the MQTT topic for alarm transitions.
const Topic = "thermo/dashboard/alerts"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "thermo/dashboard/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an alert transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(tr logic.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for an alert transition.
type Payload struct {
	Alert AlertPayload `json:"alert"`
}

// AlertPayload contains the transition details.
type AlertPayload struct {
	Timestamp   string   `json:"timestamp"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Forced      bool     `json:"forced"`
	Temperature *float64 `json:"temperature,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
}

// FormatPayload creates the JSON payload for an alert transition.
// Forced transitions carry no sample and use the supplied time.
func FormatPayload(tr logic.Transition, at time.Time) ([]byte, error) {
	p := AlertPayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		From:      string(tr.From),
		To:        string(tr.To),
		Forced:    tr.Forced,
	}
	if tr.Sample != nil {
		temp, thr := tr.Sample.Temperature, tr.Sample.Threshold
		p.Timestamp = tr.Sample.Timestamp.UTC().Format(time.RFC3339)
		p.Temperature = &temp
		p.Threshold = &thr
	}
	return json.Marshal(Payload{Alert: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(logic.Transition) error  { return nil }
func (Nop) PublishSystem(SystemEvent) error { return nil }
func (Nop) Close() error                    { return nil }
func (Nop) IsConnected() bool               { return false }
