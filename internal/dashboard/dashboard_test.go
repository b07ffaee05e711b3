package dashboard

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/thermo-dash/internal/alarm"
	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/mqtt"
	"github.com/sweeney/thermo-dash/internal/notify"
	"github.com/sweeney/thermo-dash/internal/protocol"
	"github.com/sweeney/thermo-dash/internal/session"
	"github.com/sweeney/thermo-dash/internal/status"
)

// fakeLink is a scripted device connection. State changes requested by the
// loop (Connect, Disconnect) happen synchronously like the real session;
// the test drives everything the device would send.
type fakeLink struct {
	mu      sync.Mutex
	state   logic.ConnState
	attempt uint64
	address string
	sent    []protocol.Command
	events  chan session.Event
}

func newFakeLink() *fakeLink {
	return &fakeLink{state: logic.StateDisconnected, events: make(chan session.Event, 64)}
}

func (f *fakeLink) Connect(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != logic.StateDisconnected {
		return session.ErrInFlight
	}
	f.attempt++
	f.state = logic.StateConnecting
	f.address = address
	return nil
}

func (f *fakeLink) Disconnect() { f.drop(nil) }

func (f *fakeLink) Send(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != logic.StateConnected {
		return session.ErrNotConnected
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeLink) State() logic.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLink) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *fakeLink) Events() <-chan session.Event { return f.events }

func (f *fakeLink) open() {
	f.mu.Lock()
	f.state = logic.StateConnected
	ev := session.Event{Type: session.EventConnected, Attempt: f.attempt, Time: time.Now()}
	f.mu.Unlock()
	f.events <- ev
}

func (f *fakeLink) drop(cause error) {
	f.mu.Lock()
	if f.state == logic.StateDisconnected {
		f.mu.Unlock()
		return
	}
	f.state = logic.StateDisconnected
	ev := session.Event{Type: session.EventDisconnected, Attempt: f.attempt, Time: time.Now(), Err: cause}
	f.mu.Unlock()
	f.events <- ev
}

func (f *fakeLink) current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt
}

type harness struct {
	t       *testing.T
	link    *fakeLink
	snd     *alarm.FakeSounder
	ctrl    *alarm.Controller
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	d       *Dashboard
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		link:    newFakeLink(),
		snd:     alarm.NewFakeSounder(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{}),
		done:    make(chan struct{}),
	}
	h.ctrl = alarm.NewController(h.snd, h.tracker, alarm.Config{Interval: 20 * time.Millisecond, Burst: 5 * time.Millisecond})
	h.d = New(cfg, h.link, h.ctrl, h.tracker, h.pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.d.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		h.stop()
		h.ctrl.Close()
	})
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

// flush waits until the loop has taken every queued event and finished
// handling the last one.
func (h *harness) flush() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(h.link.events) > 0 {
		if time.Now().After(deadline) {
			h.t.Fatal("loop did not drain events")
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.d.do(func() {}); err != nil {
		h.t.Fatalf("flush: %v", err)
	}
}

// connect brings the link to CONNECTED.
func (h *harness) connect() {
	h.t.Helper()
	if err := h.d.Connect("10.0.0.7"); err != nil {
		h.t.Fatalf("connect: %v", err)
	}
	h.link.open()
	h.flush()
}

func (h *harness) sample(temp float64) status.Snapshot {
	h.t.Helper()
	h.link.events <- session.Event{Type: session.EventSample, Attempt: h.link.current(), Time: time.Now(), Temperature: temp}
	h.flush()
	return h.tracker.Snapshot()
}

func (h *harness) snap() status.Snapshot {
	return h.tracker.Snapshot()
}

func (h *harness) lastNotification() notify.Notification {
	ns := h.snap().Notifications
	if len(ns) == 0 {
		return notify.Notification{}
	}
	return ns[len(ns)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewPublishesInitialState(t *testing.T) {
	h := newHarness(t, Config{Threshold: 42, Capacity: 5})
	snap := h.snap()

	if snap.Connection != logic.StateDisconnected {
		t.Errorf("Connection: got %q", snap.Connection)
	}
	if snap.Alert != logic.AlertSilent {
		t.Errorf("Alert: got %q", snap.Alert)
	}
	if snap.Threshold != 42 || snap.Capacity != 5 {
		t.Errorf("Threshold/Capacity: got %v/%d", snap.Threshold, snap.Capacity)
	}
	if snap.Recording {
		t.Error("expected recording off")
	}
}

func TestHysteresisThroughLoop(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()

	want := []logic.AlertState{logic.AlertSilent, logic.AlertAlarming, logic.AlertAlarming, logic.AlertSilent}
	for i, temp := range []float64{99, 101, 100.5, 98} {
		snap := h.sample(temp)
		if snap.Alert != want[i] {
			t.Errorf("sample %d (%.1f): got %s, want %s", i, temp, snap.Alert, want[i])
		}
	}

	trs := h.pub.Transitions()
	if len(trs) != 2 {
		t.Fatalf("expected 2 published transitions, got %d", len(trs))
	}
	if trs[0].To != logic.AlertAlarming || trs[1].To != logic.AlertSilent {
		t.Errorf("unexpected transitions: %+v", trs)
	}
	if h.ctrl.Sounding() {
		t.Error("tone should be stopped after SILENT")
	}

	warnings := 0
	for _, n := range h.snap().Notifications {
		if n.Level == notify.LevelWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("expected exactly one warning notification, got %d", warnings)
	}
}

func TestAlarmSoundsWhileAlarming(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(120)

	waitFor(t, "tone bursts", func() bool { return h.snd.Tones() >= 2 })
	if !h.ctrl.Sounding() {
		t.Error("expected tone task running")
	}
}

func TestNonRecordingSamplesAreInert(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100})
	h.connect()

	snap := h.sample(150)
	if snap.Alert != logic.AlertSilent {
		t.Errorf("Alert: got %s, want SILENT", snap.Alert)
	}
	if len(snap.Window) != 0 || snap.ExportLen != 0 {
		t.Errorf("buffer changed: window=%d export=%d", len(snap.Window), snap.ExportLen)
	}
	if snap.Current != nil {
		t.Errorf("Current should not update while not recording, got %v", *snap.Current)
	}
	if len(h.pub.Transitions()) != 0 {
		t.Error("no transition should be published")
	}
}

func TestDisconnectSilencesAlarm(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(99)
	h.sample(120)
	if h.snap().Alert != logic.AlertAlarming {
		t.Fatal("expected ALARMING before disconnect")
	}

	if err := h.d.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	// Silenced by the time Disconnect returns.
	if h.ctrl.Sounding() {
		t.Error("tone still running after Disconnect")
	}
	snap := h.snap()
	if snap.Alert != logic.AlertSilent {
		t.Errorf("Alert: got %s, want SILENT", snap.Alert)
	}
	if snap.Connection != logic.StateDisconnected {
		t.Errorf("Connection: got %s", snap.Connection)
	}
	if snap.ExportLen != 2 {
		t.Errorf("disconnect must not clear the buffer: export=%d", snap.ExportLen)
	}

	tones := h.snd.Tones()
	time.Sleep(60 * time.Millisecond)
	if h.snd.Tones() != tones {
		t.Error("tone repeated after disconnect")
	}

	h.flush()
	trs := h.pub.Transitions()
	last := trs[len(trs)-1]
	if !last.Forced || last.To != logic.AlertSilent {
		t.Errorf("expected forced SILENT transition, got %+v", last)
	}
	forced := 0
	for _, tr := range trs {
		if tr.Forced {
			forced++
		}
	}
	if forced != 1 {
		t.Errorf("expected one forced transition, got %d", forced)
	}
}

func TestConnectionLossSilencesAlarm(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(120)

	h.link.drop(errors.New("unexpected EOF"))
	h.flush()

	snap := h.snap()
	if snap.Alert != logic.AlertSilent {
		t.Errorf("Alert: got %s, want SILENT", snap.Alert)
	}
	if h.ctrl.Sounding() {
		t.Error("tone still running after connection loss")
	}
	if n := h.lastNotification(); n.Level != notify.LevelWarning || n.Message != "connection lost" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestConnectFailureNotifies(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.d.Connect("10.0.0.9"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.link.drop(&session.ConnectError{URL: "ws://10.0.0.9/ws", Err: errors.New("refused")})
	h.flush()

	n := h.lastNotification()
	if n.Level != notify.LevelError || !strings.Contains(n.Message, "ws://10.0.0.9/ws") {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestSamplesAfterDisconnectAreDropped(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(50)

	// A reading queued behind a disconnect the loop has not seen yet.
	attempt := h.link.current()
	h.link.mu.Lock()
	h.link.state = logic.StateDisconnected
	h.link.mu.Unlock()
	h.link.events <- session.Event{Type: session.EventSample, Attempt: attempt, Time: time.Now(), Temperature: 150}
	h.flush()

	snap := h.snap()
	if snap.ExportLen != 1 {
		t.Errorf("late sample was recorded: export=%d", snap.ExportLen)
	}
	if snap.Alert != logic.AlertSilent {
		t.Errorf("late sample changed alert: %s", snap.Alert)
	}
}

func TestStaleAttemptSamplesAreDropped(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	first := h.link.current()
	h.d.Disconnect()
	h.connect()

	h.link.events <- session.Event{Type: session.EventSample, Attempt: first, Time: time.Now(), Temperature: 150}
	h.flush()
	if snap := h.snap(); snap.ExportLen != 0 || snap.Alert != logic.AlertSilent {
		t.Errorf("stale sample was ingested: %+v", snap.Core)
	}

	h.sample(10)
	if h.snap().ExportLen != 1 {
		t.Error("current attempt sample should be ingested")
	}
}

func TestThresholdCapturedAtArrival(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(50)

	if err := h.d.SetThreshold(40); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	snap := h.sample(50)

	if len(snap.Window) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(snap.Window))
	}
	if snap.Window[0].Threshold != 100 || snap.Window[1].Threshold != 40 {
		t.Errorf("thresholds: got %v, %v", snap.Window[0].Threshold, snap.Window[1].Threshold)
	}
	if snap.Alert != logic.AlertAlarming {
		t.Errorf("Alert: got %s, want ALARMING", snap.Alert)
	}
}

func TestSetThresholdRejectsNonFinite(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100})

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := h.d.SetThreshold(v); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("SetThreshold(%v): got %v, want ErrInvalidThreshold", v, err)
		}
	}
	got, err := h.d.Threshold()
	if err != nil || got != 100 {
		t.Errorf("threshold changed: got %v (%v)", got, err)
	}
	if n := h.lastNotification(); n.Level != notify.LevelError {
		t.Errorf("expected error notification, got %+v", n)
	}
}

func TestExportAndClear(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})

	if _, err := h.d.Export(); !errors.Is(err, logic.ErrNothingToExport) {
		t.Fatalf("empty export: got %v", err)
	}

	h.connect()
	h.sample(20.5)
	h.sample(21.25)

	data, err := h.d.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "Time,Temperature (°C),Threshold (°C)" {
		t.Errorf("header: got %q", lines[0])
	}
	if !strings.HasSuffix(lines[2], ",21.25,100.00") {
		t.Errorf("row: got %q", lines[2])
	}

	if err := h.d.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap := h.snap()
	if len(snap.Window) != 0 || snap.ExportLen != 0 || snap.Current != nil {
		t.Errorf("clear left state: %+v", snap.Core)
	}
	if _, err := h.d.Export(); !errors.Is(err, logic.ErrNothingToExport) {
		t.Errorf("export after clear: got %v", err)
	}
}

func TestWindowSlidesAtCapacity(t *testing.T) {
	h := newHarness(t, Config{Threshold: 1000, Recording: true, Capacity: 3})
	h.connect()
	for i := 1; i <= 5; i++ {
		h.sample(float64(i))
	}

	snap := h.snap()
	if len(snap.Window) != 3 {
		t.Fatalf("window: got %d", len(snap.Window))
	}
	if snap.Window[0].Temperature != 3 || snap.Window[2].Temperature != 5 {
		t.Errorf("window contents: %+v", snap.Window)
	}
	if snap.ExportLen != 5 {
		t.Errorf("export log: got %d, want 5", snap.ExportLen)
	}
	if snap.Current == nil || *snap.Current != 5 {
		t.Errorf("Current: got %v", snap.Current)
	}
}

func TestMalformedFrameKeepsState(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(120)
	before := h.snap()

	h.link.events <- session.Event{Type: session.EventMalformed, Attempt: h.link.current(), Err: protocol.ErrMalformed, Raw: []byte("{bad")}
	h.flush()

	after := h.snap()
	if after.Connection != logic.StateConnected {
		t.Errorf("Connection: got %s", after.Connection)
	}
	if after.Alert != before.Alert || after.ExportLen != before.ExportLen {
		t.Errorf("state changed: %+v -> %+v", before.Core, after.Core)
	}
	if after.Malformed != 1 {
		t.Errorf("Malformed: got %d", after.Malformed)
	}
}

func TestDeviceReplies(t *testing.T) {
	h := newHarness(t, Config{Recording: true})
	h.connect()

	h.link.events <- session.Event{Type: session.EventReply, Attempt: h.link.current(), Frame: protocol.Frame{Kind: protocol.KindData, Data: []float64{1.5, 2.5}}}
	h.flush()
	snap := h.snap()
	if len(snap.DeviceRecord) != 2 || snap.DeviceRecord[1] != 2.5 {
		t.Errorf("DeviceRecord: got %v", snap.DeviceRecord)
	}
	if snap.ExportLen != 0 {
		t.Error("device record must not be merged into the export log")
	}

	h.link.events <- session.Event{Type: session.EventReply, Attempt: h.link.current(), Frame: protocol.Frame{Kind: protocol.KindError, Error: "unknown command"}}
	h.flush()
	if n := h.lastNotification(); n.Level != notify.LevelWarning || n.Message != "device error: unknown command" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestConnectInFlight(t *testing.T) {
	h := newHarness(t, Config{Address: "10.1.1.1"})

	if err := h.d.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := h.link.Address(); got != "10.1.1.1" {
		t.Errorf("default address: got %q", got)
	}
	if h.snap().Connection != logic.StateConnecting {
		t.Errorf("Connection: got %s, want CONNECTING", h.snap().Connection)
	}
	if err := h.d.Connect("10.2.2.2"); !errors.Is(err, session.ErrInFlight) {
		t.Errorf("second connect: got %v, want ErrInFlight", err)
	}
}

func TestSendCommand(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.d.SendCommand(protocol.CmdGetRecord); !errors.Is(err, session.ErrNotConnected) {
		t.Errorf("send while disconnected: got %v", err)
	}

	h.connect()
	if err := h.d.SendCommand(protocol.CmdStartRecord); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.link.mu.Lock()
	sent := append([]protocol.Command(nil), h.link.sent...)
	h.link.mu.Unlock()
	if len(sent) != 1 || sent[0] != protocol.CmdStartRecord {
		t.Errorf("sent: got %v", sent)
	}
}

func TestToggleRecording(t *testing.T) {
	h := newHarness(t, Config{})

	on, err := h.d.ToggleRecording()
	if err != nil || !on {
		t.Fatalf("toggle: got %v (%v)", on, err)
	}
	if !h.snap().Recording {
		t.Error("tracker should show recording")
	}
	on, _ = h.d.ToggleRecording()
	if on {
		t.Error("second toggle should stop recording")
	}
	if err := h.d.SetRecording(true); err != nil || !h.snap().Recording {
		t.Errorf("SetRecording(true): %v", err)
	}
}

func TestShutdownSilencesAndStopsActions(t *testing.T) {
	h := newHarness(t, Config{Threshold: 100, Recording: true})
	h.connect()
	h.sample(120)

	h.stop()

	if h.ctrl.Sounding() {
		t.Error("tone still running after shutdown")
	}
	if h.snap().Alert != logic.AlertSilent {
		t.Error("expected SILENT after shutdown")
	}
	if err := h.d.SetRecording(false); !errors.Is(err, ErrStopped) {
		t.Errorf("action after stop: got %v, want ErrStopped", err)
	}
}

// Drives the loop's handlers directly so a reading from the first attempt
// can sit in the queue behind Disconnect and a fresh connection.
func TestDisconnectDropsQueuedSamplesFromOldAttempt(t *testing.T) {
	link := newFakeLink()
	snd := alarm.NewFakeSounder()
	tracker := status.NewTracker(time.Now(), status.Config{})
	ctrl := alarm.NewController(snd, tracker, alarm.Config{Interval: 20 * time.Millisecond, Burst: 5 * time.Millisecond})
	defer ctrl.Close()
	pub := mqtt.NewFakePublisher()
	d := New(Config{Threshold: 100, Recording: true}, link, ctrl, tracker, pub, nil)

	link.Connect("")
	link.open()
	d.handle(<-link.events)
	first := link.current()

	queued := session.Event{Type: session.EventSample, Attempt: first, Time: time.Now(), Temperature: 150}

	d.disconnect()
	link.Connect("")
	link.open()

	// The old reading is handled first, while the new attempt is already CONNECTED.
	d.handle(queued)
	for len(link.events) > 0 {
		d.handle(<-link.events)
	}

	if d.window.ExportLen() != 0 {
		t.Errorf("export len: got %d, want 0", d.window.ExportLen())
	}
	if got := pub.Transitions(); len(got) != 0 {
		t.Errorf("alarm re-armed by stale reading: %+v", got)
	}
	if ctrl.State() != logic.AlertSilent {
		t.Errorf("alert: got %s, want SILENT", ctrl.State())
	}

	// Readings from the new attempt are ingested.
	d.handle(session.Event{Type: session.EventSample, Attempt: link.current(), Time: time.Now(), Temperature: 20})
	if d.window.ExportLen() != 1 {
		t.Errorf("export len after new reading: got %d, want 1", d.window.ExportLen())
	}
}
