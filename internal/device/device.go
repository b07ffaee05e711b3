// Package device serves thermocouple readings to dashboards over WebSocket,
// speaking the same frames the dashboard session parses.
package device

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/thermo-dash/internal/protocol"
	"github.com/sweeney/thermo-dash/internal/thermocouple"
)

// DefaultInterval is the sampling period.
const DefaultInterval = time.Second

// MaxRecord bounds the on-device record buffer.
const MaxRecord = 3600

const writeWait = 5 * time.Second

// Server samples a thermocouple and broadcasts readings to every connected
// client.
type Server struct {
	reader   thermocouple.Reader
	interval time.Duration
	upgrader websocket.Upgrader
	srv      *http.Server
	start    time.Time

	mu        sync.Mutex
	clients   map[*client]struct{}
	recording bool
	record    []float64
	last      float64
	haveLast  bool
	readErrs  int
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serialises writes
}

func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// New creates a device server on addr. A non-positive interval selects
// DefaultInterval.
func New(addr string, reader thermocouple.Reader, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Server{
		reader:   reader,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		start:   time.Now(),
		clients: make(map[*client]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+protocol.Path, s.handleWS)
	mux.HandleFunc("GET /{$}", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops the HTTP server and closes every client socket.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return err
}

// Run samples every interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Sample takes one reading and broadcasts it. Failed reads are logged and
// skipped.
func (s *Server) Sample() {
	v, err := s.reader.Read()
	if err != nil {
		s.mu.Lock()
		s.readErrs++
		s.mu.Unlock()
		log.Printf("device: read failed: %v", err)
		return
	}

	s.mu.Lock()
	s.last, s.haveLast = v, true
	if s.recording {
		s.record = append(s.record, v)
		if over := len(s.record) - MaxRecord; over > 0 {
			s.record = append(s.record[:0], s.record[over:]...)
		}
	}
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	msg := protocol.TemperatureFrame(v)
	for _, c := range targets {
		if err := c.write(msg); err != nil {
			log.Printf("device: drop client %s: %v", c.conn.RemoteAddr(), err)
			s.remove(c)
		}
	}
}

// Clients reports the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Record returns a copy of the record buffer.
func (s *Server) Record() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64{}, s.record...)
}

// Recording reports whether samples are being appended to the record buffer.
func (s *Server) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("device: upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Printf("device: client %s connected (%d total)", conn.RemoteAddr(), n)

	go s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.remove(c)
	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := c.write(s.handleCommand(string(msg))); err != nil {
			return
		}
	}
}

// handleCommand returns the reply frame for one command.
func (s *Server) handleCommand(text string) []byte {
	cmd, ok := protocol.ParseCommand(text)
	if !ok {
		log.Printf("device: unknown command %q", text)
		return protocol.UnknownCommand()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case protocol.CmdTest:
		return protocol.StatusOK()
	case protocol.CmdStartRecord:
		s.record = s.record[:0]
		s.recording = true
		return protocol.RecordingFrame(true)
	case protocol.CmdEndRecord:
		s.recording = false
		return protocol.RecordingFrame(false)
	default: // CmdGetRecord
		return protocol.DataFrame(append([]float64{}, s.record...))
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
		log.Printf("device: client %s disconnected", c.conn.RemoteAddr())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := "--"
	if s.haveLast {
		last = fmt.Sprintf("%.2f°C", s.last)
	}
	line := fmt.Sprintf("thermo-device: temperature=%s clients=%d recording=%t record_len=%d read_errors=%d uptime=%s\n",
		last, len(s.clients), s.recording, len(s.record), s.readErrs, time.Since(s.start).Truncate(time.Second))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, line)
}
