package sync

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/store"
)

// mockStore is a minimal in-memory store for sync tests.
type mockStore struct {
	mu       gosync.Mutex
	events   []*model.Event
	statuses map[string]*model.ComponentStatus
	pruned   []time.Time
}

func newMockStore() *mockStore {
	return &mockStore{statuses: make(map[string]*model.ComponentStatus)}
}

func (m *mockStore) RecordEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, f model.EventFilter) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) LatestEventID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].ID, nil
}

func (m *mockStore) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, before)
	var kept []*model.Event
	for _, e := range m.events {
		if !e.CreatedAt.Before(before) {
			kept = append(kept, e)
		}
	}
	n := int64(len(m.events) - len(kept))
	m.events = kept
	return n, nil
}

func (m *mockStore) SetComponentStatus(_ context.Context, cs *model.ComponentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[cs.Component] = cs
	return nil
}

func (m *mockStore) ListComponentStatus(_ context.Context) ([]*model.ComponentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ComponentStatus, 0, len(m.statuses))
	for _, cs := range m.statuses {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }
