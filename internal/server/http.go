package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/model"
)

// maxEmitBody bounds the payload accepted by POST /v1/events/{name}.
const maxEmitBody = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.handleEventStream)
	mux.HandleFunc("POST /v1/events/{name}", s.handleEmit)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/clients", s.handleClients)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/diagnostics", s.handleDiagnostics)
	return AuthMiddleware(authToken, mux)
}

// EmitResponse is the body returned by POST /v1/events/{name}.
type EmitResponse struct {
	ID int64 `json:"id"`
}

// Diagnostics is the body returned by GET /v1/diagnostics.
type Diagnostics struct {
	Clients        int           `json:"clients"`
	LastEventID    int64         `json:"last_event_id"`
	Dropped        int64         `json:"dropped"`
	RingBufferSize int           `json:"ring_buffer_size"`
	Status         events.Status `json:"status"`
	BusConfigured  bool          `json:"bus_configured"`
	BusConnected   bool          `json:"bus_connected"`
	StoreEnabled   bool          `json:"store_enabled"`
	Uptime         string        `json:"uptime"`
}

// handleEmit handles POST /v1/events/{name}.
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEmitBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxEmitBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	id, err := s.Publish(r.Context(), name, body, model.SourceAPI, "")
	if err != nil {
		writePublishError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EmitResponse{ID: id})
}

// handleListEvents handles GET /v1/events?after=N&names=a,b&limit=N.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "event log not configured")
		return
	}

	q := r.URL.Query()
	var filter model.EventFilter
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		filter.AfterID = n
	}
	if v := q.Get("names"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter.Names = append(filter.Names, name)
			}
		}
	}
	filter.Limit = 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogReplay {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	evts, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

// handleClients handles GET /v1/clients?all=true.
func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	writeJSON(w, http.StatusOK, map[string]any{"clients": s.presence.Roster(all)})
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDiagnostics handles GET /v1/diagnostics.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Diagnostics())
}

// Diagnostics reports the hub and bridge state.
func (s *Server) Diagnostics() Diagnostics {
	configured, connected := s.busState()
	return Diagnostics{
		Clients:        s.ClientCount(),
		LastEventID:    s.hub.latestID(),
		Dropped:        s.hub.dropped.Load(),
		RingBufferSize: len(s.hub.ring),
		Status:         s.Status(),
		BusConfigured:  configured,
		BusConnected:   connected,
		StoreEnabled:   s.store != nil,
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	}
}

// writePublishError maps Publish errors to HTTP status codes.
func writePublishError(w http.ResponseWriter, err error) {
	var ie inputError
	if errors.As(err, &ie) {
		writeError(w, http.StatusBadRequest, ie.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
