// Package sse implements the server-sent events wire format: a decoder for
// clients, an encoder for servers, and a dialer that opens an event stream
// over HTTP.
package sse

import "time"

// DefaultEventName is the event type used when a block has no "event:" field.
const DefaultEventName = "message"

// ContentType is the media type of an event stream response.
const ContentType = "text/event-stream"

// Event is a single dispatched server-sent event.
type Event struct {
	ID    string // last event id seen on the stream when this event was dispatched
	Name  string
	Data  string
	Retry time.Duration // reconnection time requested by the server, 0 if never set
}
