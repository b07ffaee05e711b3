// Package status provides a thread-safe status tracker for the dashboard.
// The dashboard loop writes it; HTTP handlers and the terminal UI read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/notify"
)

// MaxNotifications bounds the notification history kept for display.
const MaxNotifications = 20

// Config contains daemon configuration for display.
type Config struct {
	Device        string
	HTTPAddr      string
	Broker        string
	Capacity      int
	AlarmInterval time.Duration
	AlarmBurst    time.Duration
	StorageDriver string
}

// Core is the state owned by the dashboard loop.
type Core struct {
	Connection   logic.ConnState
	Address      string
	Alert        logic.AlertState
	Recording    bool
	Threshold    float64
	Current      *float64 // last recorded temperature
	Window       []logic.Sample
	Capacity     int
	ExportLen    int
	Malformed    int
	DeviceRecord []float64 // last get_record reply from the device
}

// Snapshot is a point-in-time view of dashboard state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Core
	Notifications []notify.Notification
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable dashboard state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Core: Core{
				Connection: logic.StateDisconnected,
				Alert:      logic.AlertSilent,
				Capacity:   cfg.Capacity,
			},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetCore replaces the loop-owned state.
// Called by the dashboard loop after every handled event.
func (t *Tracker) SetCore(c Core) {
	t.mu.Lock()
	t.snap.Core = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Notify records a notification, dropping the oldest beyond MaxNotifications.
func (t *Tracker) Notify(n notify.Notification) {
	t.mu.Lock()
	t.snap.Notifications = append(t.snap.Notifications, n)
	if over := len(t.snap.Notifications) - MaxNotifications; over > 0 {
		t.snap.Notifications = append([]notify.Notification(nil), t.snap.Notifications[over:]...)
	}
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the dashboard state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Window = append([]logic.Sample(nil), t.snap.Window...)
	s.Notifications = append([]notify.Notification(nil), t.snap.Notifications...)
	s.DeviceRecord = append([]float64(nil), t.snap.DeviceRecord...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
