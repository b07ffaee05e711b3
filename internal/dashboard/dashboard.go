// Package dashboard runs the event loop that ties the device session, the
// telemetry buffer and the alarm together.
//
// All loop-owned state (window, alarm, recording flag, threshold) is touched
// only from Run. Other goroutines reach it through the action methods, which
// execute on the loop and return once the published status reflects them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/sweeney/thermo-dash/internal/export"
	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/mqtt"
	"github.com/sweeney/thermo-dash/internal/notify"
	"github.com/sweeney/thermo-dash/internal/protocol"
	"github.com/sweeney/thermo-dash/internal/session"
	"github.com/sweeney/thermo-dash/internal/status"
)

// DefaultThreshold is the alarm threshold in °C used by the default config.
const DefaultThreshold = 100.0

var (
	// ErrInvalidThreshold rejects NaN and infinite thresholds.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrStopped is returned by actions once Run has exited.
	ErrStopped = errors.New("dashboard: not running")
)

// Link is the device connection the loop consumes. *session.Session implements it.
type Link interface {
	Connect(address string) error
	Disconnect()
	Send(cmd protocol.Command) error
	State() logic.ConnState
	Address() string
	Events() <-chan session.Event
}

// Alarm is the alert controller. *alarm.Controller implements it.
type Alarm interface {
	OnSample(s logic.Sample, recording bool) logic.Transition
	ForceSilent(reason string) logic.Transition
	State() logic.AlertState
}

// Config holds the loop's starting values.
type Config struct {
	Address   string  // used by Connect("")
	Capacity  int     // display window size
	Threshold float64 // initial threshold
	Recording bool    // record from the first sample
}

type action struct {
	fn   func()
	done chan struct{}
}

// Dashboard is the single-owner event loop.
type Dashboard struct {
	cfg       Config
	link      Link
	alarm     Alarm
	tracker   *status.Tracker
	publisher mqtt.Publisher
	notifier  notify.Notifier
	now       func() time.Time

	actions chan action
	stopped chan struct{}

	// Owned by Run.
	window       *logic.Window
	threshold    float64
	recording    bool
	current      *float64
	live         uint64 // attempt id of the open connection, 0 when none
	malformed    int
	deviceRecord []float64
}

// New creates a dashboard. A nil publisher disables MQTT; a nil notifier
// sends notifications to the tracker only. A non-finite threshold falls back
// to DefaultThreshold.
func New(cfg Config, link Link, alarm Alarm, tracker *status.Tracker, publisher mqtt.Publisher, notifier notify.Notifier) *Dashboard {
	if cfg.Capacity <= 0 {
		cfg.Capacity = logic.DefaultCapacity
	}
	if cfg.Address == "" {
		cfg.Address = protocol.DefaultAddress
	}
	if math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		cfg.Threshold = DefaultThreshold
	}
	if tracker == nil {
		tracker = status.NewTracker(time.Now(), status.Config{Capacity: cfg.Capacity})
	}
	if publisher == nil {
		publisher = mqtt.Nop{}
	}
	if notifier == nil {
		notifier = tracker
	}

	d := &Dashboard{
		cfg:       cfg,
		link:      link,
		alarm:     alarm,
		tracker:   tracker,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
		actions:   make(chan action),
		stopped:   make(chan struct{}),
		window:    logic.NewWindow(cfg.Capacity),
		threshold: cfg.Threshold,
		recording: cfg.Recording,
	}
	d.publish()
	return d
}

// Run processes session events and actions until ctx is cancelled.
// It must be called exactly once.
func (d *Dashboard) Run(ctx context.Context) {
	defer close(d.stopped)

	events := d.link.Events()
	for {
		select {
		case <-ctx.Done():
			d.silence("shutting down")
			d.publish()
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.handle(ev)
			d.publish()

		case a := <-d.actions:
			a.fn()
			d.publish()
			close(a.done)
		}
	}
}

// do runs fn on the loop and waits for it.
func (d *Dashboard) do(fn func()) error {
	a := action{fn: fn, done: make(chan struct{})}
	select {
	case d.actions <- a:
	case <-d.stopped:
		return ErrStopped
	}
	<-a.done
	return nil
}

// SetThreshold changes the threshold applied to samples ingested from now on.
func (d *Dashboard) SetThreshold(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		d.notify(notify.LevelError, "threshold must be a number")
		return ErrInvalidThreshold
	}
	return d.do(func() {
		if v == d.threshold {
			return
		}
		d.threshold = v
		log.Printf("dashboard: threshold set to %.2f", v)
	})
}

// Threshold returns the threshold in effect.
func (d *Dashboard) Threshold() (float64, error) {
	var v float64
	err := d.do(func() { v = d.threshold })
	return v, err
}

// SetRecording starts or stops recording.
func (d *Dashboard) SetRecording(on bool) error {
	return d.do(func() { d.setRecording(on) })
}

// ToggleRecording flips recording and returns the new value.
func (d *Dashboard) ToggleRecording() (bool, error) {
	var on bool
	err := d.do(func() {
		d.setRecording(!d.recording)
		on = d.recording
	})
	return on, err
}

// Clear empties the display window and the export log.
func (d *Dashboard) Clear() error {
	return d.do(func() {
		d.window.Clear()
		d.current = nil
		log.Printf("dashboard: buffer cleared")
	})
}

// Export returns the recorded series as CSV.
// Returns logic.ErrNothingToExport when nothing has been recorded.
func (d *Dashboard) Export() ([]byte, error) {
	var samples []logic.Sample
	var exportErr error
	if err := d.do(func() { samples, exportErr = d.window.Export() }); err != nil {
		return nil, err
	}
	if exportErr != nil {
		d.notify(notify.LevelWarning, "no data to export")
		return nil, exportErr
	}
	return export.CSV(samples)
}

// Connect starts a connection attempt. An empty address uses the configured one.
func (d *Dashboard) Connect(address string) error {
	if address == "" {
		address = d.cfg.Address
	}
	var connErr error
	err := d.do(func() {
		if connErr = d.link.Connect(address); connErr == nil {
			d.notify(notify.LevelInfo, "connecting to "+address)
		}
	})
	if err != nil {
		return err
	}
	return connErr
}

// Disconnect closes the device connection and silences the alarm before returning.
func (d *Dashboard) Disconnect() error {
	return d.do(d.disconnect)
}

// disconnect drops the live attempt at once so readings from it still
// queued behind the action are ignored, even if a new attempt connects first.
func (d *Dashboard) disconnect() {
	d.link.Disconnect()
	d.live = 0
	d.silence("disconnected")
}

// SendCommand writes a plaintext command to the device.
func (d *Dashboard) SendCommand(cmd protocol.Command) error {
	var sendErr error
	if err := d.do(func() { sendErr = d.link.Send(cmd) }); err != nil {
		return err
	}
	if sendErr != nil {
		d.notify(notify.LevelError, fmt.Sprintf("command %s failed: %v", cmd, sendErr))
	}
	return sendErr
}

func (d *Dashboard) setRecording(on bool) {
	if on == d.recording {
		return
	}
	d.recording = on
	if on {
		log.Printf("dashboard: recording started")
	} else {
		log.Printf("dashboard: recording stopped")
	}
}

func (d *Dashboard) handle(ev session.Event) {
	switch ev.Type {
	case session.EventConnected:
		d.live = ev.Attempt
		d.notify(notify.LevelInfo, "connected to "+d.link.Address())

	case session.EventDisconnected:
		if ev.Attempt == d.live {
			d.live = 0
		}
		d.silence("connection lost")
		var ce *session.ConnectError
		switch {
		case errors.As(ev.Err, &ce):
			d.notify(notify.LevelError, fmt.Sprintf("could not connect to %s", ce.URL))
		case ev.Err != nil:
			d.notify(notify.LevelWarning, "connection lost")
		default:
			d.notify(notify.LevelInfo, "disconnected")
		}

	case session.EventSample:
		d.ingest(ev)

	case session.EventReply:
		d.reply(ev.Frame)

	case session.EventMalformed:
		d.malformed++
	}
}

// ingest handles one reading to completion. Readings that arrive after the
// connection left CONNECTED are dropped.
func (d *Dashboard) ingest(ev session.Event) {
	if ev.Attempt != d.live || d.link.State() != logic.StateConnected {
		return
	}

	s := logic.Sample{Timestamp: ev.Time, Temperature: ev.Temperature, Threshold: d.threshold}
	if d.recording {
		d.window.Push(s)
		t := s.Temperature
		d.current = &t
	}

	tr := d.alarm.OnSample(s, d.recording)
	if tr.Changed() {
		d.publishTransition(tr)
	}
}

func (d *Dashboard) reply(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindStatus:
		d.notify(notify.LevelInfo, "device: "+f.Status)
	case protocol.KindRecording:
		d.notify(notify.LevelInfo, "device recording "+f.Recording)
	case protocol.KindData:
		d.deviceRecord = append([]float64(nil), f.Data...)
		d.notify(notify.LevelInfo, fmt.Sprintf("device record: %d values", len(f.Data)))
	case protocol.KindError:
		d.notify(notify.LevelWarning, "device error: "+f.Error)
	}
}

func (d *Dashboard) silence(reason string) {
	tr := d.alarm.ForceSilent(reason)
	if tr.Changed() {
		d.publishTransition(tr)
	}
}

func (d *Dashboard) publishTransition(tr logic.Transition) {
	if err := d.publisher.Publish(tr); err != nil {
		log.Printf("dashboard: mqtt publish error: %v", err)
	}
}

// publish copies loop state into the tracker.
func (d *Dashboard) publish() {
	var current *float64
	if d.current != nil {
		c := *d.current
		current = &c
	}
	d.tracker.SetCore(status.Core{
		Connection:   d.link.State(),
		Address:      d.link.Address(),
		Alert:        d.alarm.State(),
		Recording:    d.recording,
		Threshold:    d.threshold,
		Current:      current,
		Window:       d.window.Snapshot(),
		Capacity:     d.window.Capacity(),
		ExportLen:    d.window.ExportLen(),
		Malformed:    d.malformed,
		DeviceRecord: append([]float64(nil), d.deviceRecord...),
	})
}

func (d *Dashboard) notify(level notify.Level, msg string) {
	d.notifier.Notify(notify.Notification{Time: d.now(), Level: level, Message: msg})
}
