package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	EventCount  int       `json:"event_count"`
	StatusCount int       `json:"status_count"`
	LastEventID int64     `json:"last_event_id"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the event log and the component status table from the
// store as JSONL to w. Events are written in id order; since, when non-zero,
// drops events created before it.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, since time.Time) error {
	events, err := s.ListEvents(ctx, model.EventFilter{Since: since})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	statuses, err := s.ListComponentStatus(ctx)
	if err != nil {
		return fmt.Errorf("list component status: %w", err)
	}

	var lastID int64
	if n := len(events); n > 0 {
		lastID = events[n-1].ID
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		EventCount:  len(events),
		StatusCount: len(statuses),
		LastEventID: lastID,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}

	for _, cs := range statuses {
		if err := enc.Encode(record{Type: "status", Data: cs}); err != nil {
			return fmt.Errorf("encode status %s: %w", cs.Component, err)
		}
	}

	return nil
}
