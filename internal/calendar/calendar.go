// Package calendar defines the calendar gateway used for availability and
// bookings, and a local implementation backed by the agenda store.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/store"
)

// Gateway is the calendar service the dialogue books against.
type Gateway interface {
	// ListBusyIntervals returns busy intervals overlapping [start, end).
	ListBusyIntervals(ctx context.Context, start, end time.Time) ([]models.Interval, error)
	CreateEvent(ctx context.Context, req models.EventRequest) (models.EventRef, error)
	DeleteEvent(ctx context.Context, ref models.EventRef) error
	// FindEventMatching returns the user's next event starting within the
	// window from now, or nil when there is none.
	FindEventMatching(ctx context.Context, userID string, within time.Duration) (*models.EventRef, error)
}

// Local is a Gateway that keeps events in the agenda store.
type Local struct {
	events       store.EventStore
	videoBaseURL string
	now          func() time.Time
}

// Option configures a Local calendar.
type Option func(*Local)

// WithVideoBaseURL sets the prefix of generated video meeting links.
func WithVideoBaseURL(u string) Option {
	return func(l *Local) { l.videoBaseURL = strings.TrimRight(u, "/") }
}

// WithClock overrides the clock used for FindEventMatching.
func WithClock(now func() time.Time) Option {
	return func(l *Local) { l.now = now }
}

// NewLocal creates a store-backed calendar.
func NewLocal(events store.EventStore, opts ...Option) *Local {
	l := &Local{
		events:       events,
		videoBaseURL: "https://meet.jit.si",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) ListBusyIntervals(ctx context.Context, start, end time.Time) ([]models.Interval, error) {
	events, err := l.events.ListEventsBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	busy := make([]models.Interval, len(events))
	for i, e := range events {
		busy[i] = models.Interval{Start: e.StartAt, End: e.EndAt}
	}
	return busy, nil
}

func (l *Local) CreateEvent(ctx context.Context, req models.EventRequest) (models.EventRef, error) {
	if !req.End.After(req.Start) {
		return models.EventRef{}, fmt.Errorf("event must end after it starts")
	}

	id := ulid.Make().String()
	e := &models.CalendarEvent{
		ID:          id,
		UserID:      req.UserID,
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		StartAt:     req.Start.UTC(),
		EndAt:       req.End.UTC(),
	}
	if req.WantsVideoLink {
		e.VideoURL = l.videoBaseURL + "/agenda-" + strings.ToLower(id)
	}

	if err := l.events.CreateEvent(ctx, e); err != nil {
		return models.EventRef{}, err
	}
	return e.Ref(), nil
}

func (l *Local) DeleteEvent(ctx context.Context, ref models.EventRef) error {
	return l.events.DeleteEvent(ctx, ref.ID)
}

func (l *Local) FindEventMatching(ctx context.Context, userID string, within time.Duration) (*models.EventRef, error) {
	now := l.now()
	e, err := l.events.NextEventForUser(ctx, userID, now, now.Add(within))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref := e.Ref()
	return &ref, nil
}
