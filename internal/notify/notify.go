// Package notify carries user-visible notifications (the dashboard's toasts)
// from the components that raise them to the surfaces that show them.
package notify

import (
	"log"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Time    time.Time
	Level   Level
	Message string
}

// Notifier receives notifications. Implementations must not block for long.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) {
	f(n)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify delivers n to every non-nil notifier in order.
func (m Multi) Notify(n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(n)
		}
	}
}

// Log writes notifications to the standard logger.
type Log struct{}

// Notify logs n.
func (Log) Notify(n Notification) {
	log.Printf("notify: [%s] %s", n.Level, n.Message)
}
