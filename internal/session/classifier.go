// Package session classifies a virtual-live session into Upcoming, Live or
// Ended and tracks the transitions between them.
package session

import (
	"fmt"
	"time"
)

// Phase is the coarse state of a session.
type Phase int

const (
	PhaseUpcoming Phase = iota + 1
	PhaseLive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseUpcoming:
		return "upcoming"
	case PhaseLive:
		return "live"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase as its lowercase name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a lowercase phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "upcoming":
		*p = PhaseUpcoming
	case "live":
		*p = PhaseLive
	case "ended":
		*p = PhaseEnded
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// State is a derived, never-persisted snapshot of a session.
// Remaining is set while Upcoming; Elapsed while Live (and pinned to the
// duration once Ended).
type State struct {
	Phase     Phase
	Remaining time.Duration
	Elapsed   time.Duration
}

// Classifier computes a State from the resolved start, the video duration
// (0 = unknown) and the current time.
type Classifier struct {
	// EarlyJoin admits viewers this long before the start; they are Live at
	// elapsed 0 until the start passes. Zero means strictly Upcoming.
	EarlyJoin time.Duration
}

// Classify is pure: the same inputs always yield the same State.
func (c Classifier) Classify(start time.Time, duration time.Duration, now time.Time) State {
	if now.Before(start) {
		until := start.Sub(now)
		if c.EarlyJoin > 0 && until <= c.EarlyJoin {
			return State{Phase: PhaseLive}
		}
		return State{Phase: PhaseUpcoming, Remaining: until}
	}
	elapsed := now.Sub(start)
	if duration > 0 {
		if elapsed >= duration {
			return State{Phase: PhaseEnded, Elapsed: duration}
		}
	}
	return State{Phase: PhaseLive, Elapsed: elapsed}
}
