package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/agenda/internal/models"
)

// BusySource is the subset of the calendar gateway needed to compute
// availability.
type BusySource interface {
	ListBusyIntervals(ctx context.Context, start, end time.Time) ([]models.Interval, error)
}

// Finder resolves availability against a live calendar.
type Finder struct {
	policy Policy
	busy   BusySource
}

// NewFinder creates a Finder. The policy is validated up front.
func NewFinder(policy Policy, busy BusySource) (*Finder, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Finder{policy: policy, busy: busy}, nil
}

// Policy returns the finder's business-hours template.
func (f *Finder) Policy() Policy { return f.policy }

// Available fetches busy intervals for the horizon and returns the free slots
// grouped by day.
func (f *Finder) Available(ctx context.Context, now time.Time) ([]Day, error) {
	window := f.policy.Window(now)
	busy, err := f.busy.ListBusyIntervals(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}
	return Resolve(f.policy, now, busy)
}

// IsFree reports whether [start, end) is still free on the calendar.
func (f *Finder) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	busy, err := f.busy.ListBusyIntervals(ctx, start, end)
	if err != nil {
		return false, fmt.Errorf("list busy intervals: %w", err)
	}
	candidate := models.Interval{Start: start, End: end}
	for _, b := range busy {
		if b.Overlaps(candidate) {
			return false, nil
		}
	}
	return true, nil
}
