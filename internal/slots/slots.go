// Package slots turns calendar busy intervals into bookable appointment slots.
package slots

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/joescharf/agenda/internal/models"
)

// DateKey is the layout of the day keys used by Day.Key.
const DateKey = "2006-01-02"

// TimeLabel is the layout of slot start labels.
const TimeLabel = "15:04"

// Booking horizons an office may configure, in days.
const (
	MinBookingHorizon = 14
	MaxBookingHorizon = 30
)

// Policy is the fixed business-hours template.
type Policy struct {
	Weekdays    []time.Weekday // empty means every day
	StartTimes  []string       // daily start times, "HH:MM"
	Duration    time.Duration
	HorizonDays int
	Location    *time.Location
}

// DefaultPolicy is the standard office schedule: every weekday at four fixed
// start times, one hour each, two weeks ahead.
func DefaultPolicy(loc *time.Location) Policy {
	return Policy{
		Weekdays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartTimes:  []string{"09:00", "10:30", "15:00", "16:30"},
		Duration:    time.Hour,
		HorizonDays: 14,
		Location:    loc,
	}
}

type clock struct{ hour, min int }

// validate checks the policy and returns the parsed, de-duplicated start times
// in chronological order.
func (p Policy) validate() ([]clock, error) {
	if p.Duration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %s", p.Duration)
	}
	if p.HorizonDays < 1 || p.HorizonDays > 90 {
		return nil, fmt.Errorf("horizon must be between 1 and 90 days, got %d", p.HorizonDays)
	}
	if len(p.StartTimes) == 0 {
		return nil, fmt.Errorf("no daily start times configured")
	}

	var clocks []clock
	for _, s := range p.StartTimes {
		t, err := time.Parse(TimeLabel, s)
		if err != nil {
			return nil, fmt.Errorf("invalid start time %q: %w", s, err)
		}
		clocks = append(clocks, clock{t.Hour(), t.Minute()})
	}
	sort.Slice(clocks, func(i, j int) bool {
		if clocks[i].hour == clocks[j].hour {
			return clocks[i].min < clocks[j].min
		}
		return clocks[i].hour < clocks[j].hour
	})
	return slices.Compact(clocks), nil
}

// Validate reports whether the policy can be resolved.
func (p Policy) Validate() error {
	_, err := p.validate()
	return err
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p Policy) allows(d time.Weekday) bool {
	return len(p.Weekdays) == 0 || slices.Contains(p.Weekdays, d)
}

// Window returns the range the policy can produce slots in: from now to the
// end of the last day of the horizon.
func (p Policy) Window(now time.Time) models.Interval {
	local := now.In(p.location())
	y, m, d := local.Date()
	end := time.Date(y, m, d+p.HorizonDays, 0, 0, 0, 0, p.location())
	return models.Interval{Start: now, End: end}
}

// Slot is one bookable interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Label formats the slot as "DD/MM/YYYY HH:MM".
func (s Slot) Label() string {
	return s.Start.Format("02/01/2006 15:04")
}

// Day groups the free slots of one calendar day, in chronological order.
type Day struct {
	Date  time.Time // local midnight
	Slots []Slot
}

// Key returns the day as YYYY-MM-DD.
func (d Day) Key() string {
	return d.Date.Format(DateKey)
}

// Times returns the start labels of the day's slots.
func (d Day) Times() []string {
	out := make([]string, len(d.Slots))
	for i, s := range d.Slots {
		out[i] = s.Start.Format(TimeLabel)
	}
	return out
}

// Merge sorts busy intervals and coalesces overlapping or touching ones.
// Empty and inverted intervals are dropped.
func Merge(busy []models.Interval) []models.Interval {
	sorted := make([]models.Interval, 0, len(busy))
	for _, b := range busy {
		if b.End.After(b.Start) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var merged []models.Interval
	for _, b := range sorted {
		n := len(merged)
		if n > 0 && !b.Start.After(merged[n-1].End) {
			if b.End.After(merged[n-1].End) {
				merged[n-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

// conflicts reports whether candidate overlaps any interval of merged.
func conflicts(merged []models.Interval, candidate models.Interval) bool {
	// First busy interval that ends after the candidate starts.
	i := sort.Search(len(merged), func(i int) bool { return merged[i].End.After(candidate.Start) })
	return i < len(merged) && merged[i].Overlaps(candidate)
}

// Resolve computes the free slots in the policy's horizon. Days without any
// free slot are omitted; an empty result means no availability.
func Resolve(p Policy, now time.Time, busy []models.Interval) ([]Day, error) {
	clocks, err := p.validate()
	if err != nil {
		return nil, err
	}
	loc := p.location()
	merged := Merge(busy)

	local := now.In(loc)
	y, m, d := local.Date()

	var days []Day
	for offset := 0; offset < p.HorizonDays; offset++ {
		date := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		if !p.allows(date.Weekday()) {
			continue
		}
		day := Day{Date: date}
		for _, c := range clocks {
			start := time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.min, 0, 0, loc)
			if !start.After(now) {
				continue
			}
			candidate := models.Interval{Start: start, End: start.Add(p.Duration)}
			if conflicts(merged, candidate) {
				continue
			}
			day.Slots = append(day.Slots, Slot{Start: candidate.Start, End: candidate.End})
		}
		if len(day.Slots) > 0 {
			days = append(days, day)
		}
	}
	return days, nil
}

// FirstDays returns at most n days.
func FirstDays(days []Day, n int) []Day {
	if n <= 0 || len(days) <= n {
		return days
	}
	return days[:n]
}

// FirstSlots flattens days and returns at most n slots.
func FirstSlots(days []Day, n int) []Slot {
	var out []Slot
	for _, d := range days {
		for _, s := range d.Slots {
			if n > 0 && len(out) == n {
				return out
			}
			out = append(out, s)
		}
	}
	return out
}

// FindDay returns the day with the given YYYY-MM-DD key.
func FindDay(days []Day, key string) (Day, bool) {
	for _, d := range days {
		if d.Key() == key {
			return d, true
		}
	}
	return Day{}, false
}
