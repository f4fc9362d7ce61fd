// Package page models the dashboard markup the listener drives: elements
// tagged with a refresh group (the data-sse attribute), status indicators
// addressed by id, and the refresh trigger sent to them.
package page

import (
	"slices"
	"sync"
)

// Refresh groups recognized on the dashboard.
const (
	GroupOrders    = "orders"
	GroupDashboard = "dashboard"
	GroupNodeState = "nodestate"
	GroupNodes     = "nodes"
)

// Status indicator ids.
const (
	RDSStatusID       = "rds-status"
	MessagingStatusID = "msg-status"
)

// Indicator classes. The base class is always present; exactly one of the
// state classes follows it.
const (
	ClassHealth     = "health"
	ClassHealthOK   = "health-ok"
	ClassHealthFail = "health-fail"
)

// HealthClass returns the full class attribute for an indicator state.
func HealthClass(ok bool) string {
	if ok {
		return ClassHealth + " " + ClassHealthOK
	}
	return ClassHealth + " " + ClassHealthFail
}

// Element is one node of the page.
type Element struct {
	ID      string `toml:"id,omitempty"`
	Group   string `toml:"group,omitempty"`  // data-sse attribute value
	Class   string `toml:"class,omitempty"`  // class attribute
	Source  string `toml:"source,omitempty"` // URL the element's content is fetched from
	Content string `toml:"-"`
}

// Document is a concurrency-safe set of elements kept in document order.
// Lookups return copies; mutations go through the Document.
type Document struct {
	mu       sync.RWMutex
	elements []*Element
}

// NewDocument returns a document holding copies of elems in the given order.
func NewDocument(elems ...Element) *Document {
	d := &Document{}
	for _, e := range elems {
		d.Append(e)
	}
	return d
}

// Append adds an element at the end of the document.
func (d *Document) Append(e Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el := e
	d.elements = append(d.elements, &el)
}

// Remove deletes every element with the given id.
func (d *Document) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements = slices.DeleteFunc(d.elements, func(e *Element) bool { return e.ID == id })
}

// QueryGroup returns the first element tagged with group, or nil.
func (d *Document) QueryGroup(group string) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.elements {
		if e.Group == group {
			el := *e
			return &el
		}
	}
	return nil
}

// ByID returns the first element with the given id, or nil.
func (d *Document) ByID(id string) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if e := d.byID(id); e != nil {
		el := *e
		return &el
	}
	return nil
}

// SetClass replaces the class attribute of the element with the given id.
// It reports whether the element exists.
func (d *Document) SetClass(id, class string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.byID(id)
	if e == nil {
		return false
	}
	e.Class = class
	return true
}

// SetContent replaces the rendered content of the element with the given id.
// Elements without an id are addressed by their group.
func (d *Document) SetContent(key, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.byID(key)
	if e == nil {
		for _, candidate := range d.elements {
			if candidate.ID == "" && candidate.Group == key {
				e = candidate
				break
			}
		}
	}
	if e == nil {
		return false
	}
	e.Content = content
	return true
}

// Snapshot returns copies of all elements in document order.
func (d *Document) Snapshot() []Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Element, len(d.elements))
	for i, e := range d.elements {
		out[i] = *e
	}
	return out
}

func (d *Document) byID(id string) *Element {
	if id == "" {
		return nil
	}
	for _, e := range d.elements {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Key returns the identifier SetContent uses for e.
func (e Element) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Group
}
