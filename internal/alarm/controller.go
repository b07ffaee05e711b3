package alarm

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/notify"
)

// Default tone cadence: a burst shorter than the repeat interval so tone and
// silence alternate.
const (
	DefaultInterval = 1 * time.Second
	DefaultBurst    = 300 * time.Millisecond
)

// Config sets the tone cadence.
type Config struct {
	Interval time.Duration
	Burst    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.Burst >= c.Interval {
		c.Burst = c.Interval / 2
	}
	return c
}

// Controller owns the alert state machine and its audible side effect.
// OnSample and ForceSilent must be called from a single goroutine (the
// dashboard loop); the tone itself runs on the repeater's goroutine.
type Controller struct {
	alert    *logic.Alert
	sounder  Sounder
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
	repeater *Repeater

	// toneFailed suppresses repeated error logs within one alarm episode.
	mu         sync.Mutex
	toneFailed bool
}

// NewController creates a SILENT controller. A nil sounder is allowed and is
// treated as unavailable audio: state still changes, the failure is logged.
func NewController(sounder Sounder, notifier notify.Notifier, cfg Config) *Controller {
	c := &Controller{
		alert:    logic.NewAlert(),
		sounder:  sounder,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	c.repeater = NewRepeater(c.cfg.Interval, c.tone)
	return c
}

// State returns the current alert state.
func (c *Controller) State() logic.AlertState {
	return c.alert.State()
}

// Sounding reports whether the repeating tone task is active.
func (c *Controller) Sounding() bool {
	return c.repeater.Running()
}

// OnSample evaluates one sample and applies the resulting side effects.
// Samples are ignored entirely when recording is false.
func (c *Controller) OnSample(s logic.Sample, recording bool) logic.Transition {
	tr := c.alert.Evaluate(s, recording)
	if !tr.Changed() {
		return tr
	}

	switch tr.To {
	case logic.AlertAlarming:
		c.startTone()
		c.notify(notify.LevelWarning, fmt.Sprintf("temperature %.2f°C reached threshold %.2f°C", s.Temperature, s.Threshold))
	case logic.AlertSilent:
		c.repeater.Stop()
		c.notify(notify.LevelInfo, fmt.Sprintf("temperature %.2f°C back below threshold %.2f°C", s.Temperature, s.Threshold))
	}
	log.Printf("alarm: %s -> %s (temp=%.2f threshold=%.2f)", tr.From, tr.To, s.Temperature, s.Threshold)
	return tr
}

// ForceSilent silences the alarm regardless of the last sample. Used when the
// data source is lost.
func (c *Controller) ForceSilent(reason string) logic.Transition {
	tr := c.alert.ForceSilent()
	c.repeater.Stop()
	if tr.Changed() {
		log.Printf("alarm: %s -> %s (forced: %s)", tr.From, tr.To, reason)
		c.notify(notify.LevelInfo, "alarm silenced: "+reason)
	}
	return tr
}

// Close stops the tone and releases the sounder.
func (c *Controller) Close() error {
	c.repeater.Stop()
	if c.sounder != nil {
		return c.sounder.Close()
	}
	return nil
}

func (c *Controller) startTone() {
	c.mu.Lock()
	c.toneFailed = false
	c.mu.Unlock()

	if c.sounder == nil {
		log.Printf("alarm: audio unavailable, alarm is silent")
		return
	}
	c.repeater.Start()
}

// tone runs on the repeater goroutine.
func (c *Controller) tone(ctx context.Context) {
	err := c.sounder.Tone(ctx, c.cfg.Burst)
	if err == nil {
		return
	}
	c.mu.Lock()
	first := !c.toneFailed
	c.toneFailed = true
	c.mu.Unlock()
	if first {
		log.Printf("alarm: tone failed: %v", err)
	}
}

func (c *Controller) notify(level notify.Level, msg string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(notify.Notification{Time: c.now(), Level: level, Message: msg})
}
