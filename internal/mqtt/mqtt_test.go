package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	s := logic.Sample{
		Timestamp:   time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Temperature: 101.5,
		Threshold:   100,
	}
	tr := logic.Transition{From: logic.AlertSilent, To: logic.AlertAlarming, Sample: &s}

	payload, err := FormatPayload(tr, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Alert.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Alert.Timestamp)
	}
	if parsed.Alert.From != "SILENT" || parsed.Alert.To != "ALARMING" {
		t.Errorf("unexpected edge: %s -> %s", parsed.Alert.From, parsed.Alert.To)
	}
	if parsed.Alert.Temperature == nil || *parsed.Alert.Temperature != 101.5 {
		t.Errorf("unexpected temperature: %v", parsed.Alert.Temperature)
	}
	if parsed.Alert.Threshold == nil || *parsed.Alert.Threshold != 100 {
		t.Errorf("unexpected threshold: %v", parsed.Alert.Threshold)
	}
	if parsed.Alert.Forced {
		t.Error("expected forced=false")
	}
}

func TestFormatPayloadForcedExactJSON(t *testing.T) {
	tr := logic.Transition{From: logic.AlertAlarming, To: logic.AlertSilent, Forced: true}
	at := time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC)

	payload, err := FormatPayload(tr, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"alert":{"timestamp":"2026-02-03T10:30:45Z","from":"ALARMING","to":"SILENT","forced":true}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()
	tr := logic.Transition{From: logic.AlertSilent, To: logic.AlertAlarming}

	if err := pub.Publish(tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := pub.Transitions()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].To != logic.AlertAlarming {
		t.Errorf("unexpected transition: %+v", got[0])
	}
	if len(pub.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(pub.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	err := pub.Publish(logic.Transition{})
	if err == nil {
		t.Error("expected error")
	}
	if len(pub.Transitions()) != 0 {
		t.Error("event should not be recorded on error")
	}

	pub.PublishSystemError = errors.New("broker down")
	if err := pub.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected system error")
	}
	if len(pub.SystemEvents) != 0 {
		t.Error("system event should not be recorded on error")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true
	pub.Publish(logic.Transition{})
	pub.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
	pub.Close()

	if !pub.Closed {
		t.Error("expected Closed=true")
	}
	if !pub.IsConnected() {
		t.Error("expected IsConnected=true")
	}

	pub.Reset()
	if len(pub.Events) != 0 || len(pub.SystemEvents) != 0 || pub.Closed || pub.Connected {
		t.Errorf("reset left state behind: %+v", pub)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(logic.Transition{}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{}); err != nil {
		t.Errorf("PublishSystem: %v", err)
	}
	if (Nop{}).IsConnected() {
		t.Error("Nop should never report connected")
	}
}

func TestTopics(t *testing.T) {
	if Topic != "thermo/dashboard/alerts" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "thermo/dashboard/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC),
		Event:     "STARTUP",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillPayload(t *testing.T) {
	payload, err := willPayload(time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"OFFLINE","reason":"LWT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}
