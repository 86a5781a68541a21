package session

import "time"

// Transition describes the effect of one re-evaluation.
type Transition struct {
	From Phase
	To   Phase
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool { return t.From != t.To }

// LeftLive reports whether the session moved out of Live.
func (t Transition) LeftLive() bool { return t.From == PhaseLive && t.To != PhaseLive }

// Machine re-evaluates a session on each tick. Ended is terminal.
// A Machine is not safe for concurrent use; it is owned by a single event loop.
type Machine struct {
	classifier  Classifier
	start       time.Time
	duration    time.Duration
	state       State
	playerEnded bool
}

// NewMachine returns a Machine already evaluated at now.
func NewMachine(c Classifier, start time.Time, duration time.Duration, now time.Time) *Machine {
	m := &Machine{classifier: c, start: start, duration: duration}
	m.state = c.Classify(start, duration, now)
	return m
}

// State returns the latest evaluated state.
func (m *Machine) State() State { return m.state }

// Start returns the resolved start instant.
func (m *Machine) Start() time.Time { return m.start }

// Duration returns the known video duration, or 0.
func (m *Machine) Duration() time.Duration { return m.duration }

// Tick re-evaluates the session at now.
func (m *Machine) Tick(now time.Time) Transition {
	return m.apply(m.classifier.Classify(m.start, m.duration, now))
}

// SetDuration records the duration reported by the player and re-evaluates.
func (m *Machine) SetDuration(d time.Duration, now time.Time) Transition {
	if d > 0 {
		m.duration = d
	}
	return m.Tick(now)
}

// PlayerEnded records an end-of-playback report at offset. It ends a Live
// session when the duration is unknown or offset has reached it.
func (m *Machine) PlayerEnded(offset time.Duration) Transition {
	if m.state.Phase != PhaseLive {
		return Transition{From: m.state.Phase, To: m.state.Phase}
	}
	if m.duration > 0 && offset < m.duration {
		return Transition{From: PhaseLive, To: PhaseLive}
	}
	m.playerEnded = true
	elapsed := offset
	if m.duration > 0 {
		elapsed = m.duration
	}
	return m.apply(State{Phase: PhaseEnded, Elapsed: elapsed})
}

func (m *Machine) apply(next State) Transition {
	from := m.state.Phase
	if from == PhaseEnded {
		return Transition{From: from, To: from}
	}
	if m.playerEnded && next.Phase != PhaseEnded {
		next = State{Phase: PhaseEnded, Elapsed: m.state.Elapsed}
	}
	m.state = next
	return Transition{From: from, To: next.Phase}
}
