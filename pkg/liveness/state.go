package liveness

import (
	"fmt"
	"time"
)

// State is the coarse state of the machine.
type State int

const (
	StateScanning State = iota
	StateVerifying
	StateGranted
	StateDenied
)

var stateNames = map[State]string{
	StateScanning:  "scanning",
	StateVerifying: "verifying",
	StateGranted:   "granted",
	StateDenied:    "denied",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase is the flash phase of a verifying session.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseDark
	PhaseBright
)

func (p Phase) String() string {
	switch p {
	case PhaseDark:
		return "dark"
	case PhaseBright:
		return "bright"
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// EventKind identifies a machine event.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventFlash   EventKind = "flash"
	EventRetry   EventKind = "retry"
	EventGranted EventKind = "granted"
	EventDenied  EventKind = "denied"
	EventExpired EventKind = "expired"
	EventStopped EventKind = "stopped"
)

// Event is emitted on every session transition.
type Event struct {
	Kind      EventKind
	SessionID string
	Identity  string
	Attempt   int
	Verdict   Verdict
	At        time.Time
}

// Observer receives machine events.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Observers fans events out to several observers.
type Observers []Observer

// Observe forwards e to every observer.
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		o.Observe(e)
	}
}

// Status is a read-only view of the machine for display and reporting.
type Status struct {
	State      State      `json:"state"`
	Phase      Phase      `json:"phase"`
	SessionID  string     `json:"session_id,omitempty"`
	Identity   string     `json:"identity,omitempty"`
	Attempts   int        `json:"attempts"`
	LastReason FailReason `json:"last_reason,omitempty"`
}

// Status returns the current status.
func (m *Machine) Status() Status {
	st := Status{State: m.State(), Phase: m.Phase()}
	if s := m.session(); s != nil {
		st.SessionID = s.ID
		st.Identity = s.Identity
		st.Attempts = s.Attempts
		st.LastReason = s.Last.Reason
	}
	return st
}
