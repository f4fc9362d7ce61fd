// Package presence tracks the pages connected to the event stream for the
// client roster.
//
// The Tracker keeps an in-memory entry per stream client, updated by the
// server as clients connect, receive events and disconnect. A background
// reaper flags clients that have gone quiet and evicts entries for clients
// that disconnected a while ago.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is a single stream client's presence state.
type Entry struct {
	Client         string    `json:"client"`
	Remote         string    `json:"remote,omitempty"`
	Filters        []string  `json:"filters,omitempty"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastSeen       time.Time `json:"last_seen"`
	LastEvent      string    `json:"last_event,omitempty"`    // name of the last event written
	LastEventID    int64     `json:"last_event_id,omitempty"` // id of the last event written
	IdleSecs       float64   `json:"idle_secs"`               // seconds since last write
	EventCount     int64     `json:"event_count"`
	DurationSecs   float64   `json:"duration_secs"`             // seconds since connect
	Connected      bool      `json:"connected"`
	DisconnectedAt time.Time `json:"disconnected_at,omitempty"` // zero while connected
	Stalled        bool      `json:"stalled,omitempty"`         // true if the reaper saw no writes
}

// Client identifies a newly connected stream client.
type Client struct {
	ID      string
	Remote  string
	Filters []string
}

// ReaperConfig configures the background reaper.
type ReaperConfig struct {
	// StallThreshold is how long a connected client may go without a write
	// (event or keepalive) before it is flagged as stalled.
	// Default: 1 minute.
	StallThreshold time.Duration

	// EvictAfter is how long a disconnected client stays in the roster.
	// Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans the roster.
	// Default: 30 seconds.
	SweepInterval time.Duration

	// OnStall is called for each client newly flagged as stalled.
	// Called outside the lock.
	OnStall func(client, remote string)
}

// Tracker maintains an in-memory roster of stream clients.
type Tracker struct {
	mu      sync.RWMutex
	clients map[string]*clientState

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type clientState struct {
	remote         string
	filters        []string
	connectedAt    time.Time
	lastSeen       time.Time
	lastEvent      string
	lastEventID    int64
	eventCount     int64
	disconnectedAt time.Time
	stalled        bool
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{clients: make(map[string]*clientState)}
}

// Connect adds a client to the roster.
func (t *Tracker) Connect(c Client) {
	if c.ID == "" {
		return
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[c.ID] = &clientState{
		remote:      c.Remote,
		filters:     append([]string(nil), c.Filters...),
		connectedAt: now,
		lastSeen:    now,
	}
}

// RecordEvent notes that an event was written to the client.
func (t *Tracker) RecordEvent(id, name string, eventID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.clients[id]
	if !ok {
		return
	}
	state.touch(time.Now())
	state.lastEvent = name
	if eventID > 0 {
		state.lastEventID = eventID
	}
	state.eventCount++
}

// Touch notes a keepalive write to the client.
func (t *Tracker) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.clients[id]; ok {
		state.touch(time.Now())
	}
}

func (s *clientState) touch(now time.Time) {
	s.lastSeen = now
	if s.stalled {
		slog.Info("presence: stalled client recovered", "remote", s.remote)
		s.stalled = false
	}
}

// Disconnect marks a client as gone. The entry stays in the roster until the
// reaper evicts it.
func (t *Tracker) Disconnect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.clients[id]; ok && state.disconnectedAt.IsZero() {
		state.disconnectedAt = time.Now()
	}
}

// Connected returns the number of clients currently connected.
func (t *Tracker) Connected() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, state := range t.clients {
		if state.disconnectedAt.IsZero() {
			n++
		}
	}
	return n
}

// Roster returns a snapshot of all tracked clients, most recently active
// first. Disconnected clients are included only when includeGone is set.
func (t *Tracker) Roster(includeGone bool) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.clients))
	for id, state := range t.clients {
		connected := state.disconnectedAt.IsZero()
		if !connected && !includeGone {
			continue
		}
		end := now
		if !connected {
			end = state.disconnectedAt
		}
		entries = append(entries, Entry{
			Client:         id,
			Remote:         state.remote,
			Filters:        state.filters,
			ConnectedAt:    state.connectedAt,
			LastSeen:       state.lastSeen,
			LastEvent:      state.lastEvent,
			LastEventID:    state.lastEventID,
			IdleSecs:       now.Sub(state.lastSeen).Seconds(),
			EventCount:     state.eventCount,
			DurationSecs:   end.Sub(state.connectedAt).Seconds(),
			Connected:      connected,
			DisconnectedAt: state.disconnectedAt,
			Stalled:        state.stalled,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].Client < entries[j].Client
	})
	return entries
}

// StartReaper launches a background goroutine that periodically flags
// stalled clients and evicts disconnected ones. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.StallThreshold == 0 {
		cfg.StallThreshold = time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"stall_threshold", cfg.StallThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()

	type stalledClient struct {
		id     string
		remote string
	}
	var newlyStalled []stalledClient

	t.mu.Lock()
	for id, state := range t.clients {
		if !state.disconnectedAt.IsZero() {
			if now.Sub(state.disconnectedAt) > cfg.EvictAfter {
				delete(t.clients, id)
			}
			continue
		}
		if !state.stalled && now.Sub(state.lastSeen) > cfg.StallThreshold {
			state.stalled = true
			newlyStalled = append(newlyStalled, stalledClient{id: id, remote: state.remote})
		}
	}
	t.mu.Unlock()

	for _, c := range newlyStalled {
		slog.Warn("presence: stream client stalled",
			"client", c.id,
			"remote", c.remote,
			"threshold", cfg.StallThreshold)
		if cfg.OnStall != nil {
			cfg.OnStall(c.id, c.remote)
		}
	}
}
