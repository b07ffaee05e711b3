package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/thermo-dash/internal/dashboard"
	"github.com/sweeney/thermo-dash/internal/protocol"
	"github.com/sweeney/thermo-dash/internal/records"
	"github.com/sweeney/thermo-dash/internal/session"
)

// maxBody bounds JSON request bodies.
const maxBody = 64 << 10

// ActionResponse is the body of every /api reply.
type ActionResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, ActionResponse{OK: true})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ActionResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrInvalidThreshold),
		errors.Is(err, records.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInFlight),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ActionResponse{Error: msg})
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.FormValue("threshold"))
	if raw == "" {
		badRequest(w, "threshold is required")
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(w, fmt.Sprintf("threshold %q is not a number", raw))
		return
	}
	if err := s.controls.SetThreshold(v); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// handleRecording sets recording from the "recording" field, or toggles it
// when the field is absent.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.FormValue("recording"))
	var on bool
	if raw == "" {
		var err error
		if on, err = s.controls.ToggleRecording(); err != nil {
			writeError(w, err)
			return
		}
	} else {
		var err error
		if on, err = strconv.ParseBool(raw); err != nil {
			badRequest(w, fmt.Sprintf("recording %q is not a boolean", raw))
			return
		}
		if err := s.controls.SetRecording(on); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ActionResponse{OK: true, Recording: &on})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.controls.Clear(); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controls.Connect(strings.TrimSpace(r.FormValue("address"))); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controls.Disconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, ok := protocol.ParseCommand(r.FormValue("command"))
	if !ok {
		badRequest(w, protocol.UnknownCommandMessage)
		return
	}
	if err := s.controls.SendCommand(cmd); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleChemicalsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chemicals.Records())
}

func (s *Server) handleChemicalsCreate(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	writeResult(w, s.chemicals.Create(r.Context(), rec), http.StatusCreated)
}

func (s *Server) handleChemicalsUpdate(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	writeResult(w, s.chemicals.Update(r.Context(), rec), http.StatusOK)
}

// handleChemicalsDelete takes the backend id from ?id= or a JSON body.
func (s *Server) handleChemicalsDelete(w http.ResponseWriter, r *http.Request) {
	rec := records.ChemicalRecord{BackendID: r.URL.Query().Get("id")}
	if rec.BackendID == "" {
		var ok bool
		if rec, ok = decodeRecord(w, r); !ok {
			return
		}
	}
	writeResult(w, s.chemicals.Delete(r.Context(), rec), http.StatusOK)
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (records.ChemicalRecord, bool) {
	var rec records.ChemicalRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		badRequest(w, fmt.Sprintf("invalid record: %v", err))
		return rec, false
	}
	return rec, true
}

func writeResult(w http.ResponseWriter, res records.Result, code int) {
	if !res.Success {
		err := res.Err
		if err == nil {
			err = errors.New("operation failed")
		}
		writeError(w, err)
		return
	}
	writeJSON(w, code, res.Record)
}
