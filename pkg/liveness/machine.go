package liveness

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

// Phase timing of one flash cycle and of the denial hold.
const (
	DarkPhase   = 600 * time.Millisecond
	FlashGrace  = 300 * time.Millisecond
	BrightPhase = 800 * time.Millisecond
	DenialHold  = 5 * time.Second
)

// ErrNotScanning is returned when a session is started while one is active.
var ErrNotScanning = errors.New("liveness: machine is not scanning")

// Sample is what the machine needs from one frame.
type Sample struct {
	Present     bool
	Glare       bool
	Brightness  float64
	LightCenter float64
	LightEdge   float64
}

// Session is the verification of one claimed identity.
type Session struct {
	ID         string
	Identity   string
	Baseline   float64
	Thresholds Thresholds
	Started    time.Time
	Phase      Phase
	PhaseStart time.Time
	Extrema    Extrema
	Attempts   int
	Last       Verdict
}

// state is the tagged variant behind Machine. Only verifying, granted and
// denied carry a session, so a scanning machine cannot hold stale data.
type state interface {
	kind() State
}

type scanning struct{}

type verifying struct {
	session *Session
}

type granted struct {
	session *Session
	at      time.Time
}

type denied struct {
	session *Session
	at      time.Time
}

func (scanning) kind() State   { return StateScanning }
func (*verifying) kind() State { return StateVerifying }
func (*granted) kind() State   { return StateGranted }
func (*denied) kind() State    { return StateDenied }

// Transition describes what a call to Update did.
type Transition struct {
	From    State
	To      State
	Phase   Phase
	Verdict *Verdict // set when a flash cycle was evaluated
}

// Changed reports whether the machine moved to another state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Machine is the liveness state machine for one camera stream. It is not
// safe for concurrent use; frames are processed one at a time.
type Machine struct {
	defaults Thresholds
	clock    clock.Clock
	state    state
	observer Observer
}

// NewMachine creates a scanning machine. defaults is copied and never
// modified.
func NewMachine(defaults Thresholds, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Machine{
		defaults: defaults,
		clock:    clk,
		state:    scanning{},
	}
}

// SetObserver registers the receiver of machine events.
func (m *Machine) SetObserver(o Observer) {
	m.observer = o
}

// Defaults returns the process-wide thresholds.
func (m *Machine) Defaults() Thresholds {
	return m.defaults
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state.kind()
}

// Phase returns the flash phase, or PhaseNone outside verification.
func (m *Machine) Phase() Phase {
	if v, ok := m.state.(*verifying); ok {
		return v.session.Phase
	}
	return PhaseNone
}

// Session returns a copy of the active session.
func (m *Machine) Session() (Session, bool) {
	if s := m.session(); s != nil {
		return *s, true
	}
	return Session{}, false
}

func (m *Machine) session() *Session {
	switch st := m.state.(type) {
	case *verifying:
		return st.session
	case *granted:
		return st.session
	case *denied:
		return st.session
	}
	return nil
}

// Begin starts verifying identity. baseline is the face brightness sampled
// on the frame that confirmed the identity; the session thresholds are
// adapted from it here and nowhere else.
func (m *Machine) Begin(identity string, baseline float64) (Session, error) {
	if _, ok := m.state.(scanning); !ok {
		return Session{}, ErrNotScanning
	}

	now := m.clock.Now()
	s := &Session{
		ID:         uuid.NewString(),
		Identity:   identity,
		Baseline:   baseline,
		Thresholds: m.defaults.Adapt(baseline),
		Started:    now,
	}
	startCycle(s, now)
	m.state = &verifying{session: s}

	logging.Component("liveness").WithFields(logging.Fields{
		"session":        s.ID,
		"user":           identity,
		"baseline":       baseline,
		"max_dark_val":   s.Thresholds.MaxDarkVal,
		"min_flash_diff": s.Thresholds.MinFlashDiff,
	}).Info("Verification started")
	m.emit(EventStarted, s, now)

	return *s, nil
}

// Update advances the machine with one frame. Flash phases only progress on
// frames with a face; the granted and denied holds expire on any frame.
func (m *Machine) Update(sample Sample) Transition {
	now := m.clock.Now()
	from := m.state.kind()

	switch st := m.state.(type) {
	case *verifying:
		if sample.Present {
			return m.stepVerifying(st.session, sample, now)
		}
	case *granted:
		if now.Sub(st.at) > m.defaults.Reauth() {
			m.expire(st.session, now)
		}
	case *denied:
		if now.Sub(st.at) > DenialHold {
			m.expire(st.session, now)
		}
	}

	return Transition{From: from, To: m.state.kind(), Phase: m.Phase()}
}

func (m *Machine) stepVerifying(s *Session, sample Sample, now time.Time) Transition {
	t := Transition{From: StateVerifying, To: StateVerifying}
	elapsed := now.Sub(s.PhaseStart)

	switch s.Phase {
	case PhaseDark:
		if sample.Brightness < s.Extrema.MinDark {
			s.Extrema.MinDark = sample.Brightness
		}
		if elapsed > DarkPhase {
			s.Phase = PhaseBright
			s.PhaseStart = now
			s.Extrema.MaxCenter = 0.0
			s.Extrema.MaxEdge = 0.0
			m.emit(EventFlash, s, now)
		}

	case PhaseBright:
		// Readings during the ramp-up of the flash are discarded.
		if elapsed > FlashGrace {
			if sample.Brightness > s.Extrema.MaxLight {
				s.Extrema.MaxLight = sample.Brightness
			}
			if sample.LightCenter > s.Extrema.MaxCenter {
				s.Extrema.MaxCenter = sample.LightCenter
			}
			if sample.LightEdge > s.Extrema.MaxEdge {
				s.Extrema.MaxEdge = sample.LightEdge
			}
		}
		if elapsed > BrightPhase {
			v := m.decide(s, sample.Glare, now)
			t.Verdict = &v
		}
	}

	t.To = m.state.kind()
	t.Phase = m.Phase()
	return t
}

func (m *Machine) decide(s *Session, glare bool, now time.Time) Verdict {
	v := Evaluate(s.Extrema, glare, s.Thresholds, m.defaults)
	s.Last = v

	fields := logging.Fields{
		"session": s.ID,
		"user":    s.Identity,
		"diff":    v.Diff,
		"ratio3d": v.Ratio3D,
		"attempt": s.Attempts + 1,
	}

	if v.Passed {
		m.state = &granted{session: s, at: now}
		logging.Component("liveness").WithFields(fields).Info("Access granted")
		m.emit(EventGranted, s, now)
		return v
	}

	s.Attempts++
	fields["reason"] = string(v.Reason)
	fields["attempt"] = s.Attempts

	if s.Attempts >= s.Thresholds.MaxFlashAttempts {
		m.state = &denied{session: s, at: now}
		logging.Component("liveness").WithFields(fields).Warn("Spoof detected, access denied")
		m.emit(EventDenied, s, now)
		return v
	}

	logging.Component("liveness").WithFields(fields).Info("Flash cycle failed, retrying")
	m.emit(EventRetry, s, now)
	startCycle(s, now)
	return v
}

// Stop abandons whatever the machine is doing and returns to scanning.
func (m *Machine) Stop() {
	s := m.session()
	m.state = scanning{}
	if s == nil {
		return
	}
	logging.Component("liveness").WithFields(logging.Fields{
		"session": s.ID,
		"user":    s.Identity,
	}).Info("Verification stopped")
	m.emit(EventStopped, s, m.clock.Now())
}

func (m *Machine) expire(s *Session, now time.Time) {
	m.state = scanning{}
	logging.Component("liveness").WithField("session", s.ID).Debug("Session expired, scanning")
	m.emit(EventExpired, s, now)
}

func (m *Machine) emit(kind EventKind, s *Session, now time.Time) {
	if m.observer == nil {
		return
	}
	m.observer.Observe(Event{
		Kind:      kind,
		SessionID: s.ID,
		Identity:  s.Identity,
		Attempt:   s.Attempts,
		Verdict:   s.Last,
		At:        now,
	})
}

// startCycle resets a session to the dark phase of a new flash cycle.
func startCycle(s *Session, now time.Time) {
	s.Phase = PhaseDark
	s.PhaseStart = now
	s.Extrema = freshExtrema()
}
