// Package store defines persistence for the stream: an append-only event
// log used for replay and export, and the last known state of each status
// component.
package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/model"
)

// Store is the event log. Implementations must be safe for concurrent use.
type Store interface {
	// RecordEvent appends event, assigning its ID and CreatedAt.
	RecordEvent(ctx context.Context, event *model.Event) error
	// ListEvents returns events matching filter, oldest first.
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)
	// LatestEventID is the highest recorded id, or 0.
	LatestEventID(ctx context.Context) (int64, error)
	// PruneEvents deletes events created before the cutoff and reports how many.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	SetComponentStatus(ctx context.Context, status *model.ComponentStatus) error
	ListComponentStatus(ctx context.Context) ([]*model.ComponentStatus, error)

	// RunInTransaction calls fn with a Store whose writes commit together.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
