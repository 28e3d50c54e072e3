package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/agenda/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore persists per-user conversation state.
//
// LoadSession never fails on a missing record: it returns a fresh session.
// Unreadable records are treated the same way. Callers serialize access per
// user; implementations only guarantee safety across different users.
type SessionStore interface {
	LoadSession(ctx context.Context, userID string) (*models.Session, error)
	// GetSession returns the stored session or ErrNotFound.
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, userID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// EventStore persists events for the local calendar.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.CalendarEvent) error
	GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	// ListEventsBetween returns events overlapping [start, end), ordered by start.
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]*models.CalendarEvent, error)
	// NextEventForUser returns the earliest event of userID starting in [from, to).
	NextEventForUser(ctx context.Context, userID string, from, to time.Time) (*models.CalendarEvent, error)
}

// Store defines the persistence interface for agenda.
type Store interface {
	SessionStore
	EventStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
