package model

import "time"

// EventFilter holds criteria for querying the event log.
type EventFilter struct {
	AfterID int64     `json:"after_id,omitempty"` // only events with ID > AfterID
	Names   []string  `json:"names,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Limit   int       `json:"limit,omitempty"` // 0 = no limit
}

// Matches reports whether e satisfies the filter.
func (f EventFilter) Matches(e *Event) bool {
	if e.ID <= f.AfterID {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.Names) == 0 {
		return true
	}
	for _, n := range f.Names {
		if n == e.Name {
			return true
		}
	}
	return false
}
