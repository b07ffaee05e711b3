// Package web provides the HTTP dashboard for the thermo-dash daemon.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/thermo-dash/internal/export"
	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/protocol"
	"github.com/sweeney/thermo-dash/internal/records"
	"github.com/sweeney/thermo-dash/internal/status"
)

// Controls are the user actions the page can trigger.
// *dashboard.Dashboard implements it.
type Controls interface {
	SetThreshold(v float64) error
	SetRecording(on bool) error
	ToggleRecording() (bool, error)
	Clear() error
	Export() ([]byte, error)
	Connect(address string) error
	Disconnect() error
	SendCommand(cmd protocol.Command) error
}

// Chemicals is the chemicals table. *records.Adapter implements it.
type Chemicals interface {
	Records() []records.ChemicalRecord
	Create(ctx context.Context, rec records.ChemicalRecord) records.Result
	Update(ctx context.Context, rec records.ChemicalRecord) records.Result
	Delete(ctx context.Context, rec records.ChemicalRecord) records.Result
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	controls   Controls
	chemicals  Chemicals
	now        func() time.Time
}

// New creates a Server that reads state from the tracker and forwards actions
// to controls. A nil chemicals leaves /api/chemicals unregistered.
func New(addr string, tracker *status.Tracker, controls Controls, chemicals Chemicals) *Server {
	s := &Server{
		tracker:   tracker,
		controls:  controls,
		chemicals: chemicals,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /export.csv", s.handleExport)

	mux.HandleFunc("POST /api/threshold", s.handleThreshold)
	mux.HandleFunc("POST /api/recording", s.handleRecording)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/command", s.handleCommand)

	if chemicals != nil {
		mux.HandleFunc("GET /api/chemicals", s.handleChemicalsList)
		mux.HandleFunc("POST /api/chemicals", s.handleChemicalsCreate)
		mux.HandleFunc("PUT /api/chemicals", s.handleChemicalsUpdate)
		mux.HandleFunc("DELETE /api/chemicals", s.handleChemicalsDelete)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.controls.Export()
	if errors.Is(err, logic.ErrNothingToExport) {
		http.Error(w, "no data to export", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(s.now())+`"`)
	w.Write(data)
}
