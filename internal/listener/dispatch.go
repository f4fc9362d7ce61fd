package listener

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/page"
	"github.com/alfredjeanlab/shingolive/internal/sse"
)

// ErrUnknownEvent is returned when registering a handler for a name outside
// the recognized stream events.
var ErrUnknownEvent = errors.New("unknown stream event")

// Handler processes one stream event.
type Handler func(ctx context.Context, evt sse.Event) error

// Dispatcher maps stream event names to handlers.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// NewPageDispatcher returns a dispatcher with the dashboard handlers
// registered against doc.
func NewPageDispatcher(doc *page.Document, r page.Refresher) *Dispatcher {
	d := NewDispatcher()
	d.handlers[events.OrderUpdate] = refreshGroups(doc, r, page.GroupOrders, page.GroupDashboard)
	d.handlers[events.InventoryUpdate] = refreshGroups(doc, r, page.GroupNodeState)
	d.handlers[events.NodeUpdate] = refreshGroups(doc, r, page.GroupNodes)
	d.handlers[events.SystemStatus] = applyStatus(doc)
	return d
}

// Register sets the handler for name, replacing any existing one.
func (d *Dispatcher) Register(name string, h Handler) error {
	if !events.IsStreamName(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %q", name)
	}
	d.handlers[name] = h
	return nil
}

// Wrap applies mw to the handler registered for name.
func (d *Dispatcher) Wrap(name string, mw func(Handler) Handler) error {
	h, ok := d.handlers[name]
	if !ok {
		return fmt.Errorf("%w: no handler for %q", ErrUnknownEvent, name)
	}
	d.handlers[name] = mw(h)
	return nil
}

// Names returns the registered event names.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for _, n := range events.StreamNames() {
		if _, ok := d.handlers[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Dispatch runs the handler registered for evt.Name. Events without a
// handler are ignored and reported as not handled.
func (d *Dispatcher) Dispatch(ctx context.Context, evt sse.Event) (handled bool, err error) {
	h, ok := d.handlers[evt.Name]
	if !ok {
		return false, nil
	}
	return true, h(ctx, evt)
}
