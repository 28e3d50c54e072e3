package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joescharf/agenda/internal/models"
)

// MemoryStore implements Store in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	events   map[string]*models.CalendarEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		events:   make(map[string]*models.CalendarEvent),
	}
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }
func (m *MemoryStore) Close() error                    { return nil }

func (m *MemoryStore) LoadSession(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return sess.Clone(), nil
	}
	return models.NewSession(userID, time.Now().UTC()), nil
}

func (m *MemoryStore) GetSession(_ context.Context, userID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return sess.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveSession(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	m.sessions[sess.UserID] = sess.Clone()
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastInteractionAt.After(out[j].LastInteractionAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateEvent(_ context.Context, e *models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = newULID()
	}
	if _, exists := m.events[e.ID]; exists {
		return fmt.Errorf("create event: duplicate id %s", e.ID)
	}
	e.CreatedAt = time.Now().UTC()
	c := *e
	m.events[e.ID] = &c
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (m *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryStore) ListEventsBetween(_ context.Context, start, end time.Time) ([]*models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	window := models.Interval{Start: start, End: end}
	var out []*models.CalendarEvent
	for _, e := range m.events {
		if window.Overlaps(models.Interval{Start: e.StartAt, End: e.EndAt}) {
			c := *e
			out = append(out, &c)
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *MemoryStore) NextEventForUser(_ context.Context, userID string, from, to time.Time) (*models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var candidates []*models.CalendarEvent
	for _, e := range m.events {
		if e.UserID == userID && !e.StartAt.Before(from) && e.StartAt.Before(to) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("event for %s: %w", userID, ErrNotFound)
	}
	sortEvents(candidates)
	c := *candidates[0]
	return &c, nil
}

func sortEvents(events []*models.CalendarEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartAt.Before(events[j].StartAt)
	})
}
