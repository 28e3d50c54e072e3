package models

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	start := i.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := i.End
	if o.End.Before(end) {
		end = o.End
	}
	return start.Before(end)
}

// EventRequest describes a calendar event to create.
type EventRequest struct {
	UserID         string
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	WantsVideoLink bool
}

// EventRef identifies a created calendar event.
type EventRef struct {
	ID       string
	Summary  string
	Start    time.Time
	End      time.Time
	VideoURL string // empty unless a video link was requested
}

// CalendarEvent is an event persisted by the local calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	VideoURL    string    `json:"video_url,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ref returns the reference handed back to callers of the calendar gateway.
func (e *CalendarEvent) Ref() EventRef {
	return EventRef{
		ID:       e.ID,
		Summary:  e.Summary,
		Start:    e.StartAt,
		End:      e.EndAt,
		VideoURL: e.VideoURL,
	}
}
