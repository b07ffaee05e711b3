package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Connection    string             `json:"connection"`
	Device        string             `json:"device"`
	Alert         string             `json:"alert"`
	Recording     bool               `json:"recording"`
	Threshold     float64            `json:"threshold"`
	Current       *float64           `json:"current,omitempty"`
	Window        []SampleJSON       `json:"window"`
	Capacity      int                `json:"capacity"`
	ExportLen     int                `json:"export_len"`
	Malformed     int                `json:"malformed_frames"`
	DeviceRecord  []float64          `json:"device_record,omitempty"`
	Notifications []NotificationJSON `json:"notifications"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Config        ConfigJSON         `json:"config"`
}

// SampleJSON is one point of the display window.
type SampleJSON struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Threshold   float64 `json:"threshold"`
}

// NotificationJSON is one toast.
type NotificationJSON struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Device          string `json:"device"`
	HTTPAddr        string `json:"http_addr"`
	Broker          string `json:"broker"`
	Capacity        int    `json:"capacity"`
	AlarmIntervalMs int64  `json:"alarm_interval_ms"`
	AlarmBurstMs    int64  `json:"alarm_burst_ms"`
	StorageDriver   string `json:"storage_driver"`
}

const millisLayout = "2006-01-02T15:04:05.000Z07:00"

func buildInner(snap Snapshot) StatusInner {
	conn := string(snap.Connection)
	if conn == "" {
		conn = "UNKNOWN"
	}
	alert := string(snap.Alert)
	if alert == "" {
		alert = "UNKNOWN"
	}

	inner := StatusInner{
		Connection:    conn,
		Device:        snap.Address,
		Alert:         alert,
		Recording:     snap.Recording,
		Threshold:     snap.Threshold,
		Current:       snap.Current,
		Window:        make([]SampleJSON, 0, len(snap.Window)),
		Capacity:      snap.Capacity,
		ExportLen:     snap.ExportLen,
		Malformed:     snap.Malformed,
		DeviceRecord:  snap.DeviceRecord,
		Notifications: make([]NotificationJSON, 0, len(snap.Notifications)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Device:          snap.Config.Device,
			HTTPAddr:        snap.Config.HTTPAddr,
			Broker:          snap.Config.Broker,
			Capacity:        snap.Config.Capacity,
			AlarmIntervalMs: snap.Config.AlarmInterval.Milliseconds(),
			AlarmBurstMs:    snap.Config.AlarmBurst.Milliseconds(),
			StorageDriver:   snap.Config.StorageDriver,
		},
	}
	for _, s := range snap.Window {
		inner.Window = append(inner.Window, SampleJSON{
			Time:        s.Timestamp.UTC().Format(millisLayout),
			Temperature: s.Temperature,
			Threshold:   s.Threshold,
		})
	}
	for _, n := range snap.Notifications {
		inner.Notifications = append(inner.Notifications, NotificationJSON{
			Time:    n.Time.UTC().Format(time.RFC3339),
			Level:   string(n.Level),
			Message: n.Message,
		})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// The display window and notifications are left out to keep the payload small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	inner.Window = nil
	inner.Notifications = nil
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
