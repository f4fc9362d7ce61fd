package server

import (
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alfredjeanlab/shingolive/internal/idgen"
)

const (
	// DefaultRingBufferSize is the number of recent events kept in memory
	// for Last-Event-ID reconnection support.
	DefaultRingBufferSize = 1000

	// clientBuffer is the per-client queue depth before events are dropped.
	clientBuffer = 64
)

// streamEvent is a single event stored in the ring buffer and sent to clients.
type streamEvent struct {
	ID   int64  // monotonically increasing sequence number
	Name string // stream event name
	Data []byte // JSON-encoded payload
}

// hub fans out published stream events to connected clients.
// It maintains an in-memory ring buffer for Last-Event-ID reconnection.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64

	// Ring buffer for replay on reconnection. ringMu also guards lastID so
	// ids enter the ring in order.
	ringMu  sync.RWMutex
	ring    []streamEvent
	ringPos int // next write position (wraps around)
	ringLen int // number of valid entries (up to len(ring))
	lastID  int64
}

// client represents a single connected stream consumer.
type client struct {
	id      string
	filters []string          // event name glob patterns (empty = all)
	ch      chan *streamEvent // buffered channel for event delivery
}

func newHub(size int) *hub {
	if size < 1 {
		size = DefaultRingBufferSize
	}
	return &hub{
		clients: make(map[*client]struct{}),
		ring:    make([]streamEvent, size),
	}
}

// seed sets the id the next broadcast continues from, e.g. the latest id in
// the persistent event log after a restart.
func (h *hub) seed(lastID int64) {
	h.ringMu.Lock()
	if lastID > h.lastID {
		h.lastID = lastID
	}
	h.ringMu.Unlock()
}

// broadcast assigns an id, stores the event in the ring buffer, and sends it
// to every matching client. A proposed id (from the event log) is used when
// it keeps ids increasing; otherwise the next sequence number is taken.
func (h *hub) broadcast(proposed int64, name string, payload []byte) *streamEvent {
	// Holding mu across id assignment and fan-out makes subscribe see each
	// event either in its baseline or on its channel, never both or neither.
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.ringMu.Lock()
	id := proposed
	if id <= h.lastID {
		id = h.lastID + 1
	}
	h.lastID = id
	evt := streamEvent{ID: id, Name: name, Data: payload}
	h.ring[h.ringPos] = evt
	h.ringPos = (h.ringPos + 1) % len(h.ring)
	if h.ringLen < len(h.ring) {
		h.ringLen++
	}
	h.ringMu.Unlock()

	for c := range h.clients {
		if !c.matches(name) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
			// Drop if the client is slow rather than block the publisher.
			h.dropped.Add(1)
		}
	}
	return &evt
}

// subscribe registers a new client and returns it with the id of the last
// event broadcast before it joined. Call unsubscribe when done.
func (h *hub) subscribe(filters []string) (*client, int64) {
	c := &client{
		id:      idgen.ClientID(),
		filters: filters,
		ch:      make(chan *streamEvent, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	baseline := h.latestID()
	h.mu.Unlock()
	return c, baseline
}

// unsubscribe removes a client from the hub.
func (h *hub) unsubscribe(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// clientCount returns the number of connected clients.
func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// latestID returns the id of the most recent broadcast.
func (h *hub) latestID() int64 {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()
	return h.lastID
}

// eventsSince returns buffered events with ID > lastID, in order. complete
// is false when events after lastID have already been evicted from the
// buffer, so the caller must consult the event log to fill the gap.
func (h *hub) eventsSince(lastID int64) (evts []*streamEvent, complete bool) {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	if lastID >= h.lastID {
		return nil, true
	}
	if h.ringLen == 0 {
		return nil, false
	}

	start := h.ringPos - h.ringLen
	if start < 0 {
		start += len(h.ring)
	}
	oldest := h.ring[start].ID
	for i := range h.ringLen {
		evt := h.ring[(start+i)%len(h.ring)]
		if evt.ID > lastID {
			evts = append(evts, &evt)
		}
	}
	return evts, oldest <= lastID+1
}

// matches checks whether the client's name filters match the given event.
// An empty filter list matches all events.
func (c *client) matches(name string) bool {
	return matchFilters(c.filters, name)
}

func matchFilters(filters []string, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, pattern := range filters {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// parseFilters splits a comma-separated ?events= value into glob patterns,
// rejecting malformed ones.
func parseFilters(q string) ([]string, error) {
	var filters []string
	for _, f := range strings.Split(q, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, err := path.Match(f, ""); err != nil {
			return nil, inputError("invalid event filter " + f)
		}
		filters = append(filters, f)
	}
	return filters, nil
}
