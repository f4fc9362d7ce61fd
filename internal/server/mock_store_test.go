package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/store"
)

// mockStore is a minimal in-memory event log for server tests.
type mockStore struct {
	mu        sync.Mutex
	events    []*model.Event
	statuses  map[string]*model.ComponentStatus
	nextID    int64
	recordErr error
}

func newMockStore() *mockStore {
	return &mockStore{statuses: make(map[string]*model.ComponentStatus)}
}

func (m *mockStore) RecordEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.nextID++
	e.ID = m.nextID
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
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) LatestEventID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID, nil
}

func (m *mockStore) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

// seedEvents appends events directly to the log, as a previous server run
// would have.
func (m *mockStore) seedEvents(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.nextID++
		m.events = append(m.events, &model.Event{
			ID:        m.nextID,
			Name:      n,
			Source:    model.SourceAPI,
			Payload:   []byte(`{}`),
			CreatedAt: time.Now().UTC(),
		})
	}
}

func (m *mockStore) recorded() []*model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Event(nil), m.events...)
}

// recordingPublisher captures bus publishes.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}
