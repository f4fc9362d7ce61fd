// Package listener keeps a page subscribed to the server's event stream and
// turns stream events into page refreshes.
//
// A Listener owns a single connection slot. Any transport failure closes the
// connection and schedules exactly one reconnect through the RetryPolicy
// (a constant 3s by default, forever). Handlers run one at a time in the
// order the transport delivers events.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/idgen"
	"github.com/alfredjeanlab/shingolive/internal/page"
	"github.com/alfredjeanlab/shingolive/internal/sse"
)

// ErrDisposed is returned by Connect after Dispose.
var ErrDisposed = errors.New("listener disposed")

// DefaultHandlerTimeout bounds a single handler invocation.
const DefaultHandlerTimeout = 10 * time.Second

// State is the connection state of a Listener.
type State int

const (
	Disconnected State = iota
	Connected
	Disposed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stream is an open event stream.
type Stream interface {
	Next() (sse.Event, error)
	LastEventID() string
	Close() error
}

// Dialer opens event streams.
type Dialer interface {
	Dial(ctx context.Context, url, lastEventID string) (Stream, error)
}

// SSEDialer adapts an sse.Dialer to the Dialer interface.
func SSEDialer(d *sse.Dialer) Dialer {
	return sseDialer{d}
}

type sseDialer struct{ d *sse.Dialer }

func (s sseDialer) Dial(ctx context.Context, url, lastEventID string) (Stream, error) {
	stream, err := s.d.Dial(ctx, url, lastEventID)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Options configures a Listener.
type Options struct {
	// URL of the event stream, e.g. http://core:8080/events. Required.
	URL string

	// Dispatcher handles events. Defaults to NewPageDispatcher(Document, Refresher).
	Dispatcher *Dispatcher
	Document   *page.Document
	Refresher  page.Refresher

	Dialer Dialer       // defaults to an sse.Dialer with http.DefaultClient
	Retry  RetryPolicy  // defaults to FixedDelay(DefaultRetryDelay)
	Clock  Clock        // defaults to the wall clock
	Logger *slog.Logger // defaults to slog.Default()

	// Resume sends the last received event id on reconnect so the server can
	// replay what was missed. Off by default: every reconnect starts fresh.
	Resume bool

	HandlerTimeout time.Duration // defaults to DefaultHandlerTimeout

	// OnStateChange, when set, is called after every state transition.
	OnStateChange func(State)
}

// Listener is the client side of the event stream.
type Listener struct {
	id         string
	url        string
	dispatcher *Dispatcher
	dialer     Dialer
	retry      RetryPolicy
	clock      Clock
	logger     *slog.Logger
	resume     bool
	timeout    time.Duration
	onState    func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     Stream
	state    State
	timer    Timer
	attempts int
	lastID   string

	handleMu sync.Mutex // serializes handlers across connections
	wg       sync.WaitGroup
}

// New returns a disconnected listener. Call Connect to open the stream.
func New(opts Options) (*Listener, error) {
	if opts.URL == "" {
		return nil, errors.New("listener: URL is required")
	}
	d := opts.Dispatcher
	if d == nil {
		if opts.Document == nil || opts.Refresher == nil {
			return nil, errors.New("listener: Document and Refresher are required without a Dispatcher")
		}
		d = NewPageDispatcher(opts.Document, opts.Refresher)
	}
	l := &Listener{
		id:         idgen.ListenerID(),
		url:        opts.URL,
		dispatcher: d,
		dialer:     opts.Dialer,
		retry:      opts.Retry,
		clock:      opts.Clock,
		logger:     opts.Logger,
		resume:     opts.Resume,
		timeout:    opts.HandlerTimeout,
		onState:    opts.OnStateChange,
	}
	if l.dialer == nil {
		l.dialer = SSEDialer(&sse.Dialer{})
	}
	if l.retry == nil {
		l.retry = FixedDelay(DefaultRetryDelay)
	}
	if l.clock == nil {
		l.clock = realClock{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.timeout <= 0 {
		l.timeout = DefaultHandlerTimeout
	}
	l.logger = l.logger.With("listener", l.id)
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l, nil
}

// State returns the current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect opens a fresh connection and starts delivering its events. The new
// connection replaces whatever is in the slot; an older connection that is
// still open keeps running until it fails. When the dial fails, a reconnect
// is scheduled and the dial error is returned.
func (l *Listener) Connect() error {
	l.mu.Lock()
	if l.state == Disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	lastID := ""
	if l.resume {
		lastID = l.lastID
	}
	l.mu.Unlock()

	stream, err := l.dialer.Dial(l.ctx, l.url, lastID)
	if err != nil {
		l.fail(nil, err)
		return err
	}

	l.mu.Lock()
	if l.state == Disposed {
		l.mu.Unlock()
		stream.Close()
		return ErrDisposed
	}
	l.conn = stream
	l.attempts = 0
	l.wg.Add(1)
	changed := l.setState(Connected)
	l.mu.Unlock()

	l.logger.Info("event stream connected", "url", l.url)
	l.notify(changed, Connected)

	go l.read(stream)
	return nil
}

// Run connects and blocks until ctx is done, then disposes the listener.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Connect(); errors.Is(err, ErrDisposed) {
		return err
	}
	<-ctx.Done()
	l.Dispose()
	return nil
}

// Dispose cancels any pending reconnect, closes the active connection, and
// waits for in-flight handlers. The listener cannot be reused. Dispose must
// not be called from inside a handler.
func (l *Listener) Dispose() {
	l.mu.Lock()
	if l.state == Disposed {
		l.mu.Unlock()
		return
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	conn := l.conn
	l.conn = nil
	changed := l.setState(Disposed)
	l.cancel()
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()
	l.notify(changed, Disposed)
	l.logger.Info("event stream listener disposed")
}

func (l *Listener) read(stream Stream) {
	defer l.wg.Done()
	for {
		evt, err := stream.Next()
		if err != nil {
			l.fail(stream, err)
			return
		}
		l.dispatch(evt)
	}
}

func (l *Listener) dispatch(evt sse.Event) {
	l.handleMu.Lock()
	defer l.handleMu.Unlock()

	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()

	handled, err := l.dispatcher.Dispatch(ctx, evt)
	switch {
	case !handled:
		l.logger.Debug("ignoring unrecognized event", "event", evt.Name)
	case err != nil:
		l.logger.Error("event handler failed", "event", evt.Name, "id", evt.ID, "error", err)
	}
}

// fail closes stream (nil when the dial itself failed) and, if it is the
// connection the listener currently depends on, schedules a reconnect.
func (l *Listener) fail(stream Stream, cause error) {
	if stream != nil {
		stream.Close()
	}

	l.mu.Lock()
	if l.state == Disposed {
		l.mu.Unlock()
		return
	}
	if stream != nil && stream != l.conn {
		// Superseded by a newer Connect; that connection owns the retry.
		l.mu.Unlock()
		l.logger.Debug("superseded event stream closed", "error", cause)
		return
	}
	if stream != nil {
		if id := stream.LastEventID(); id != "" {
			l.lastID = id
		}
	}
	l.conn = nil
	changed := l.setState(Disconnected)

	delay, ok := l.retry.Next(l.attempts)
	l.attempts++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if ok {
		l.timer = l.clock.AfterFunc(delay, l.reconnect)
	}
	attempt := l.attempts
	l.mu.Unlock()

	l.notify(changed, Disconnected)
	if ok {
		l.logger.Warn("event stream error, reconnecting", "error", cause, "delay", delay, "attempt", attempt)
	} else {
		l.logger.Error("event stream error, giving up", "error", cause, "attempts", attempt)
	}
}

func (l *Listener) reconnect() {
	l.mu.Lock()
	l.timer = nil
	l.mu.Unlock()
	if err := l.Connect(); err != nil && !errors.Is(err, ErrDisposed) {
		l.logger.Debug("reconnect attempt failed", "error", err)
	}
}

// setState must be called with l.mu held.
func (l *Listener) setState(s State) bool {
	if l.state == s {
		return false
	}
	l.state = s
	return true
}

func (l *Listener) notify(changed bool, s State) {
	if changed && l.onState != nil {
		l.onState(s)
	}
}
