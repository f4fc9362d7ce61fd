package listener

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/page"
	"github.com/alfredjeanlab/shingolive/internal/sse"
)

// fakeStream is a Stream fed by the test.
type fakeStream struct {
	events chan sse.Event
	errc   chan error
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	lastID string
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan sse.Event, 16),
		errc:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Next() (sse.Event, error) {
	select {
	case evt := <-s.events:
		if evt.ID != "" {
			s.mu.Lock()
			s.lastID = evt.ID
			s.mu.Unlock()
		}
		return evt, nil
	case err := <-s.errc:
		return sse.Event{}, err
	case <-s.closed:
		return sse.Event{}, io.ErrClosedPipe
	}
}

func (s *fakeStream) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeStream) send(name, data string) {
	s.events <- sse.Event{Name: name, Data: data}
}

// fakeDialer hands out queued streams; with an empty queue it fails.
type fakeDialer struct {
	mu      sync.Mutex
	queue   []*fakeStream
	lastIDs []string
}

var errRefused = errors.New("connection refused")

func (d *fakeDialer) push(s *fakeStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, s)
}

func (d *fakeDialer) Dial(_ context.Context, _ string, lastEventID string) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastIDs = append(d.lastIDs, lastEventID)
	if len(d.queue) == 0 {
		return nil, errRefused
	}
	s := d.queue[0]
	d.queue = d.queue[1:]
	return s, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastIDs)
}

// fakeClock records scheduled calls and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// pending returns timers that have neither fired nor been stopped.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireOnly fires the single pending timer, failing if there is not exactly one.
func (c *fakeClock) fireOnly(t *testing.T) time.Duration {
	t.Helper()
	p := c.pending()
	if len(p) != 1 {
		t.Fatalf("expected exactly one pending retry, got %d", len(p))
	}
	c.mu.Lock()
	p[0].fired = true
	c.mu.Unlock()
	p[0].f()
	return p[0].d
}

// recordingRefresher records the key of every triggered element.
type recordingRefresher struct {
	mu        sync.Mutex
	triggered []string
	events    []string
	fail      map[string]error
}

func (r *recordingRefresher) Trigger(_ context.Context, el *page.Element, event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = append(r.triggered, el.Key())
	r.events = append(r.events, event)
	return r.fail[el.Key()]
}

func (r *recordingRefresher) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.triggered...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// sseHandler serves a fixed script of events and then ends the stream.
func sseHandler(evts ...sse.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", sse.ContentType)
		w.WriteHeader(http.StatusOK)
		for _, e := range evts {
			_ = sse.Encode(w, e)
		}
		w.(http.Flusher).Flush()
	}
}
