package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/presence"
	"github.com/alfredjeanlab/shingolive/internal/sse"
)

// handleEventStream handles GET /events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	// Ensure response supports flushing (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filters, err := parseFilters(r.URL.Query().Get("events"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var lastID int64
	resume := false
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id >= 0 {
			lastID, resume = id, true
		}
	}

	// Subscribe before replaying so nothing published in between is lost.
	c, baseline := s.hub.subscribe(filters)
	defer s.hub.unsubscribe(c)
	s.presence.Connect(presence.Client{ID: c.id, Remote: r.RemoteAddr, Filters: filters})
	defer s.presence.Disconnect(c.id)

	logger := s.logger.With("client", c.id)
	logger.Info("stream client connected", "remote", r.RemoteAddr, "filters", filters, "last_event_id", lastID)
	defer logger.Info("stream client disconnected")

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// Current indicator state first, without an id so it does not move the
	// client's Last-Event-ID.
	if matchFilters(filters, events.SystemStatus) {
		if st := s.Status(); !st.Empty() {
			if data, err := json.Marshal(st); err == nil {
				if sse.Encode(w, sse.Event{Name: events.SystemStatus, Data: string(data)}) == nil {
					s.presence.RecordEvent(c.id, events.SystemStatus, 0)
				}
			}
		}
	}

	sent := baseline
	if resume && lastID > baseline {
		// An id from before a restart without an event log; resuming from
		// it would hide live events until the sequence catches up.
		logger.Warn("Last-Event-ID ahead of stream, starting live", "last_event_id", lastID, "latest", baseline)
		resume = false
	}
	if resume {
		sent = lastID
		for _, evt := range s.replay(r.Context(), lastID, filters) {
			if err := writeStreamEvent(w, evt); err != nil {
				return
			}
			s.presence.RecordEvent(c.id, evt.Name, evt.ID)
			sent = evt.ID
		}
	}
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.ch:
			if evt.ID <= sent {
				continue // already replayed
			}
			if err := writeStreamEvent(w, evt); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
			s.presence.RecordEvent(c.id, evt.Name, evt.ID)
			sent = evt.ID
			flusher.Flush()
		case <-keepalive.C:
			if err := sse.WriteComment(w, "keepalive"); err != nil {
				return
			}
			s.presence.Touch(c.id)
			flusher.Flush()
		}
	}
}

// writeStreamEvent writes a single event in SSE framing.
func writeStreamEvent(w http.ResponseWriter, evt *streamEvent) error {
	return sse.Encode(w, sse.Event{
		ID:   strconv.FormatInt(evt.ID, 10),
		Name: evt.Name,
		Data: string(evt.Data),
	})
}
