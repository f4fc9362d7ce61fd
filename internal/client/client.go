// Package client talks to a running shingolive server: the HTTP/JSON API
// for emitting events and reading state, and the gRPC health service.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/presence"
)

// StreamClient is the interface the CLI uses to reach the server.
type StreamClient interface {
	Emit(ctx context.Context, name string, payload json.RawMessage) (int64, error)
	ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.Event, error)
	Status(ctx context.Context) (events.Status, error)
	Clients(ctx context.Context, includeGone bool) ([]presence.Entry, error)
	Diagnostics(ctx context.Context) (*Diagnostics, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// ListEventsRequest selects events from the server's event log.
type ListEventsRequest struct {
	After int64
	Names []string
	Limit int
}

// Diagnostics mirrors GET /v1/diagnostics.
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
