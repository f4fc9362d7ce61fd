// Package server is the source side of the dashboard event stream: it
// serves GET /events to pages, accepts emitted events over HTTP, bridges
// engine bus topics, and keeps the current system status.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/presence"
	"github.com/alfredjeanlab/shingolive/internal/store"
)

// DefaultKeepaliveInterval is how often keepalive comments are sent to
// prevent idle connection timeouts.
const DefaultKeepaliveInterval = 15 * time.Second

// Options configures a Server.
type Options struct {
	Store     store.Store      // optional event log; nil keeps replay in memory only
	Publisher events.Publisher // optional; nil disables bus re-publishing
	Logger    *slog.Logger
	Presence  *presence.Tracker // optional; defaults to a new tracker

	RingBufferSize    int
	KeepaliveInterval time.Duration
}

// Server fans stream events out to connected pages.
type Server struct {
	store     store.Store
	publisher events.Publisher
	hub       *hub
	logger    *slog.Logger
	presence  *presence.Tracker
	keepalive time.Duration
	started   time.Time

	// publishMu orders record, re-publish and broadcast so ids reach
	// clients in increasing order.
	publishMu sync.Mutex

	statusMu sync.RWMutex
	status   events.Status

	busMu        sync.RWMutex
	busConnected func() bool
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// New returns a Server. Call Restore to pick up state from the event log.
func New(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		publisher: opts.Publisher,
		hub:       newHub(opts.RingBufferSize),
		logger:    opts.Logger,
		presence:  opts.Presence,
		keepalive: opts.KeepaliveInterval,
		started:   time.Now(),
	}
	if s.publisher == nil {
		s.publisher = &events.NoopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.presence == nil {
		s.presence = presence.New()
	}
	if s.keepalive <= 0 {
		s.keepalive = DefaultKeepaliveInterval
	}
	return s
}

// Restore continues the id sequence and the system status from the event
// log. It is a no-op without a store.
func (s *Server) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	id, err := s.store.LatestEventID(ctx)
	if err != nil {
		return fmt.Errorf("latest event id: %w", err)
	}
	s.hub.seed(id)

	statuses, err := s.store.ListComponentStatus(ctx)
	if err != nil {
		return fmt.Errorf("list component status: %w", err)
	}
	var st events.Status
	for _, cs := range statuses {
		st = st.Merge(events.StatusOf(cs.Component, cs.State))
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()

	s.logger.Info("restored stream state", "last_event_id", id, "components", len(statuses))
	return nil
}

// SetBusStatus registers a probe for the bus connection, reported by
// diagnostics and the gRPC health service.
func (s *Server) SetBusStatus(connected func() bool) {
	s.busMu.Lock()
	s.busConnected = connected
	s.busMu.Unlock()
}

func (s *Server) busState() (configured, connected bool) {
	s.busMu.RLock()
	defer s.busMu.RUnlock()
	if s.busConnected == nil {
		return false, false
	}
	return true, s.busConnected()
}

// Status returns the merged system status seen so far.
func (s *Server) Status() events.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return events.Status{}.Merge(s.status)
}

// ClientCount returns the number of connected stream clients.
func (s *Server) ClientCount() int {
	return s.hub.clientCount()
}

// Publish validates a stream event, records it to the event log, re-publishes
// it on the bus under shingo.stream.<name>, and broadcasts it to clients.
// Recording and re-publishing are best-effort; failures are logged but do not
// block delivery. topic is the originating bus topic, if any.
func (s *Server) Publish(ctx context.Context, name string, payload []byte, source model.Source, topic string) (int64, error) {
	if !events.IsStreamName(name) {
		return 0, inputError(fmt.Sprintf("unknown event %q", name))
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return 0, inputError("payload is not valid JSON")
	}
	var status events.Status
	if name == events.SystemStatus {
		st, err := events.ParseStatus(payload)
		if err != nil {
			return 0, inputError(err.Error())
		}
		status = st
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	rec := &model.Event{Name: name, Topic: topic, Source: source, Payload: json.RawMessage(payload)}
	s.record(ctx, rec, status)

	if err := s.publisher.Publish(ctx, events.StreamTopic(name), json.RawMessage(payload)); err != nil {
		s.logger.Warn("failed to publish stream event", "event", name, "error", err)
	}

	if !status.Empty() {
		s.statusMu.Lock()
		s.status = s.status.Merge(status)
		s.statusMu.Unlock()
	}

	evt := s.hub.broadcast(rec.ID, name, payload)
	if rec.ID != 0 && rec.ID != evt.ID {
		s.logger.Warn("stream id diverged from event log", "event", name, "log_id", rec.ID, "stream_id", evt.ID)
	}
	s.logger.Debug("stream event published", "event", name, "id", evt.ID, "source", source, "clients", s.hub.clientCount())
	return evt.ID, nil
}

// record persists the event and any status components it reports in one
// transaction. Failures are logged.
func (s *Server) record(ctx context.Context, rec *model.Event, status events.Status) {
	if s.store == nil {
		return
	}
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.RecordEvent(ctx, rec); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		for _, c := range []struct {
			name  string
			state *string
		}{{"rds", status.RDS}, {"messaging", status.Messaging}} {
			if c.state == nil {
				continue
			}
			if err := tx.SetComponentStatus(ctx, &model.ComponentStatus{Component: c.name, State: *c.state}); err != nil {
				return fmt.Errorf("set %s status: %w", c.name, err)
			}
		}
		return nil
	})
	if err != nil {
		rec.ID = 0
		s.logger.Warn("failed to record event", "event", rec.Name, "error", err)
	}
}

// replay returns the events a client that last saw lastID has missed, from
// the ring buffer and, when the buffer no longer reaches back far enough,
// the event log.
func (s *Server) replay(ctx context.Context, lastID int64, filters []string) []*streamEvent {
	buffered, complete := s.hub.eventsSince(lastID)

	var out []*streamEvent
	if !complete && s.store != nil {
		logged, err := s.store.ListEvents(ctx, model.EventFilter{AfterID: lastID, Limit: maxLogReplay})
		if err != nil {
			s.logger.Warn("event log replay failed", "last_event_id", lastID, "error", err)
		}
		for _, e := range logged {
			out = append(out, &streamEvent{ID: e.ID, Name: e.Name, Data: e.Payload})
		}
	}

	var after int64
	if n := len(out); n > 0 {
		after = out[n-1].ID
	}
	for _, e := range buffered {
		if e.ID > after {
			out = append(out, e)
		}
	}

	filtered := out[:0]
	for _, e := range out {
		if matchFilters(filters, e.Name) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// maxLogReplay bounds how many events a single reconnect reads from the log.
const maxLogReplay = 5000
