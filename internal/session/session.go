// Package session owns the WebSocket connection to the temperature device and
// turns inbound frames into a single ordered stream of events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/protocol"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

var (
	// ErrInFlight is returned by Connect while an attempt is connecting or connected.
	ErrInFlight = errors.New("session: connection already in flight")

	// ErrNotConnected is returned by Send when there is no open socket.
	ErrNotConnected = errors.New("session: not connected")
)

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// EventType identifies a session event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventSample       EventType = "sample"
	EventReply        EventType = "reply"
	EventMalformed    EventType = "malformed"
)

// Event is one entry of the session's event stream.
type Event struct {
	Type        EventType
	Attempt     uint64
	Time        time.Time
	Temperature float64        // EventSample
	Frame       protocol.Frame // EventReply
	Err         error          // EventMalformed, or the cause of EventDisconnected (nil when requested)
	Raw         []byte         // EventMalformed
}

// Session manages one device connection at a time. Reconnection is always a
// caller decision; the session never redials on its own.
type Session struct {
	dialer      Dialer
	dialTimeout time.Duration
	now         func() time.Time
	queue       *eventQueue

	mu      sync.Mutex
	state   logic.ConnState
	attempt uint64
	address string
	conn    Conn
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

// New creates a disconnected session using the given dialer.
func New(dialer Dialer) *Session {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Session{
		dialer:      dialer,
		dialTimeout: DefaultDialTimeout,
		now:         time.Now,
		queue:       newEventQueue(),
		state:       logic.StateDisconnected,
	}
}

// SetDialTimeout overrides DefaultDialTimeout. Must be called before Connect.
func (s *Session) SetDialTimeout(d time.Duration) {
	s.mu.Lock()
	s.dialTimeout = d
	s.mu.Unlock()
}

// Events returns the ordered event stream. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.queue.out
}

// State returns the current connection state.
func (s *Session) State() logic.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the device address of the current or last attempt.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Attempt returns the id of the current or last connection attempt.
func (s *Session) Attempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Connect starts a connection attempt to ws://<address>/ws.
// The state is CONNECTING when Connect returns; the outcome arrives as an
// EventConnected or EventDisconnected on the event stream.
func (s *Session) Connect(address string) error {
	s.mu.Lock()
	if s.state != logic.StateDisconnected {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.attempt++
	attempt := s.attempt
	ctx, cancel := context.WithCancel(context.Background())
	s.state = logic.StateConnecting
	s.address = address
	s.cancel = cancel
	timeout := s.dialTimeout
	s.mu.Unlock()

	url := protocol.Endpoint(address)
	log.Printf("session: connecting to %s", url)
	go s.dial(ctx, attempt, url, timeout)
	return nil
}

// Disconnect closes the socket or abandons the in-flight attempt.
// Calling it while already disconnected does nothing.
func (s *Session) Disconnect() {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()
	s.finish(attempt, nil)
}

// Send writes a plaintext command frame to the device.
func (s *Session) Send(cmd protocol.Command) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == logic.StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// Close disconnects and closes the event stream.
func (s *Session) Close() error {
	s.Disconnect()
	s.queue.close()
	return nil
}

func (s *Session) dial(ctx context.Context, attempt uint64, url string, timeout time.Duration) {
	dctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := s.dialer.DialContext(dctx, url)
	if err != nil {
		s.finish(attempt, &ConnectError{URL: url, Err: err})
		return
	}

	s.mu.Lock()
	if s.attempt != attempt || s.state != logic.StateConnecting {
		// Abandoned while dialing.
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.state = logic.StateConnected
	s.conn = conn
	s.queue.push(Event{Type: EventConnected, Attempt: attempt, Time: s.now()})
	s.mu.Unlock()

	log.Printf("session: connected to %s", url)
	s.readLoop(attempt, conn)
}

func (s *Session) readLoop(attempt uint64, conn Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.finish(attempt, err)
			return
		}
		if mt != websocket.TextMessage {
			log.Printf("session: ignoring non-text frame (type %d)", mt)
			continue
		}

		ev := Event{Attempt: attempt, Time: s.now()}
		frame, err := protocol.Parse(data)
		switch {
		case err != nil:
			log.Printf("session: dropping malformed frame %q: %v", truncate(data, 64), err)
			ev.Type = EventMalformed
			ev.Err = err
			ev.Raw = data
		case frame.Kind == protocol.KindTemperature:
			ev.Type = EventSample
			ev.Temperature = frame.Temperature
		default:
			ev.Type = EventReply
			ev.Frame = frame
		}
		s.emit(attempt, ev)
	}
}

// emit queues an event unless its attempt has been superseded or closed.
func (s *Session) emit(attempt uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != attempt || s.state != logic.StateConnected {
		return
	}
	s.queue.push(ev)
}

// finish moves the given attempt to DISCONNECTED, emitting EventDisconnected
// exactly once per attempt.
func (s *Session) finish(attempt uint64, cause error) {
	s.mu.Lock()
	if s.attempt != attempt || s.state == logic.StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = logic.StateDisconnected
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.queue.push(Event{Type: EventDisconnected, Attempt: attempt, Time: s.now(), Err: cause})
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if cause != nil {
		log.Printf("session: disconnected: %v", cause)
	} else {
		log.Printf("session: disconnected")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
