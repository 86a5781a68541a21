// Package schedule resolves a webinar's schedule descriptor into the canonical
// start instant of its virtual session.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrScheduleUnresolvable is returned when a schedule has neither a fixed
// instant nor a recognized recurring kind.
var ErrScheduleUnresolvable = errors.New("schedule unresolvable")

// Kind is the schedule type stored with a webinar.
type Kind string

const (
	KindFixed  Kind = "fixed"
	KindWeekly Kind = "weekly"
)

// Schedule describes when a webinar's virtual session starts.
type Schedule struct {
	Kind      Kind
	Start     *time.Time    // fixed or pre-resolved start
	Weekday   time.Weekday  // weekly only
	TimeOfDay time.Duration // weekly only, offset from midnight in the reference zone
}

// Fixed returns a fixed schedule starting at t.
func Fixed(t time.Time) Schedule {
	return Schedule{Kind: KindFixed, Start: &t}
}

// Weekly returns a weekly recurring schedule at hour:minute on day.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return Schedule{
		Kind:      KindWeekly,
		Weekday:   day,
		TimeOfDay: time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute,
	}
}

// ParseKind maps a stored schedule type to a Kind. Unknown values map to "".
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "once", "one-time", "onetime", "":
		return KindFixed
	case "weekly", "recurring", "weekly_recurring":
		return KindWeekly
	}
	return ""
}

// Resolver resolves schedules in a single reference zone. The same zone is
// applied to the stored value and to now on every call.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a Resolver using loc. A nil loc means UTC.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// NewOffsetResolver returns a Resolver for a fixed UTC offset, e.g. 5h30m for IST.
func NewOffsetResolver(name string, offset time.Duration) *Resolver {
	return NewResolver(time.FixedZone(name, int(offset/time.Second)))
}

// Location returns the reference zone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the start instant of the session described by s.
func (r *Resolver) Resolve(s Schedule, now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindWeekly:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday || s.TimeOfDay < 0 || s.TimeOfDay >= 24*time.Hour {
			return time.Time{}, fmt.Errorf("weekly schedule %v at %v: %w", s.Weekday, s.TimeOfDay, ErrScheduleUnresolvable)
		}
		return r.nextWeekly(s.Weekday, s.TimeOfDay, now), nil
	case KindFixed:
		if s.Start == nil || s.Start.IsZero() {
			return time.Time{}, fmt.Errorf("fixed schedule without start: %w", ErrScheduleUnresolvable)
		}
		return s.Start.In(r.loc), nil
	}
	if s.Start != nil && !s.Start.IsZero() {
		return s.Start.In(r.loc), nil
	}
	return time.Time{}, fmt.Errorf("schedule kind %q: %w", s.Kind, ErrScheduleUnresolvable)
}

// nextWeekly returns the first occurrence of day at tod that is not before now.
func (r *Resolver) nextWeekly(day time.Weekday, tod time.Duration, now time.Time) time.Time {
	local := now.In(r.loc)
	days := (int(day) - int(local.Weekday()) + 7) % 7
	h, m, sec := int(tod/time.Hour), int(tod%time.Hour/time.Minute), int(tod%time.Minute/time.Second)
	// Wall-clock construction keeps the time of day across DST changes.
	at := func(d int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+d, h, m, sec, 0, r.loc)
	}
	candidate := at(days)
	if candidate.Before(now) {
		candidate = at(days + 7)
	}
	return candidate
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant parses a stored date. Values carrying a zone keep it; values
// without one are interpreted in the resolver's reference zone.
func (r *Resolver) ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date: %w", ErrScheduleUnresolvable)
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, r.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: %w", s, ErrScheduleUnresolvable)
}

// ParseTimeOfDay parses a stored weekly start, "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("parse time of day %q: %w", s, ErrScheduleUnresolvable)
}
