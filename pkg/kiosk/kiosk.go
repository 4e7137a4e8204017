// Package kiosk is the per-frame integration point of the access kiosk.
//
// The Orchestrator receives each frame together with its face detection,
// measures the face, drives the liveness machine and returns a Render that
// the display turns into pixels. It runs in one of three modes: idle,
// enrollment and security.
package kiosk

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/illumination"
	"github.com/MrCodeEU/lpad/pkg/liveness"
	"github.com/MrCodeEU/lpad/pkg/logging"
	"github.com/MrCodeEU/lpad/pkg/userid"
)

// Identities returned by a recognizer that did not recognize anyone.
const (
	UnknownIdentity = "Unknown"
	ErrorIdentity   = "Error"
)

// AcceptScore is the recognition score a match must exceed.
const AcceptScore = 50.0

// DefaultEnrollSamples is the number of samples collected per enrollment.
const DefaultEnrollSamples = 25

var (
	ErrNotTrained        = errors.New("kiosk: no trained model, enroll a user first")
	ErrInvalidIdentity   = errors.New("kiosk: invalid identity")
	ErrNoPendingTraining = errors.New("kiosk: no enrollment waiting for training")
	ErrTrainingPending   = errors.New("kiosk: enrollment waiting for training")
)

// Recognizer identifies the face inside box.
type Recognizer interface {
	Recognize(frame image.Image, box image.Rectangle) (identity string, score float64)
	Trained() bool
}

// Enroller stores enrollment samples and trains the recognizer.
type Enroller interface {
	SaveSample(frame image.Image, box image.Rectangle, identity string, index int) bool
	Train() error
}

// Measurer computes the illumination measurements of a detected face.
type Measurer interface {
	Measure(frame image.Image, det facemesh.Detection) illumination.Measurements
}

// Mode is the operating mode of the kiosk.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEnroll
	ModeSecurity
)

func (m Mode) String() string {
	switch m {
	case ModeEnroll:
		return "enroll"
	case ModeSecurity:
		return "security"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type enrollment struct {
	identity string
	count    int
	pending  bool
}

// Snapshot is the externally visible state of the kiosk.
type Snapshot struct {
	Mode     Mode            `json:"mode"`
	Liveness liveness.Status `json:"liveness"`
	Render   Render          `json:"render"`
	Enrolled int             `json:"enrolled,omitempty"`
	Quota    int             `json:"quota,omitempty"`
}

// Orchestrator ties detection, measurement, recognition and the liveness
// machine together. Like the machine it drives, it is not safe for
// concurrent use.
type Orchestrator struct {
	machine    *liveness.Machine
	recognizer Recognizer
	enroller   Enroller
	measurer   Measurer
	quota      int

	mode   Mode
	enroll enrollment
	last   Render
}

// New creates an idle orchestrator. A non-positive quota selects
// DefaultEnrollSamples.
func New(machine *liveness.Machine, recognizer Recognizer, enroller Enroller, measurer Measurer, quota int) *Orchestrator {
	if quota <= 0 {
		quota = DefaultEnrollSamples
	}
	o := &Orchestrator{
		machine:    machine,
		recognizer: recognizer,
		enroller:   enroller,
		measurer:   measurer,
		quota:      quota,
	}
	o.last = idleRender()
	return o
}

// Mode returns the current mode.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// Machine returns the liveness machine.
func (o *Orchestrator) Machine() *liveness.Machine {
	return o.machine
}

// StartSecurity enters security mode with a scanning machine.
func (o *Orchestrator) StartSecurity() error {
	if o.enroll.pending {
		return ErrTrainingPending
	}
	if !o.recognizer.Trained() {
		return ErrNotTrained
	}
	o.machine.Stop()
	o.enroll = enrollment{}
	o.mode = ModeSecurity
	logging.Component("kiosk").WithField("mode", o.mode.String()).Info("Mode changed")
	return nil
}

// StartEnrollment starts collecting samples for identity.
func (o *Orchestrator) StartEnrollment(identity string) error {
	identity = strings.TrimSpace(identity)
	if !ValidIdentity(identity) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	if o.enroll.pending {
		return ErrTrainingPending
	}
	o.machine.Stop()
	o.enroll = enrollment{identity: identity}
	o.mode = ModeEnroll
	logging.Component("kiosk").WithFields(logging.Fields{
		"mode": o.mode.String(),
		"user": identity,
	}).Info("Mode changed")
	return nil
}

// Stop returns to idle from any mode. An enrollment that did not reach its
// quota is abandoned; its samples stay on disk until the next training.
func (o *Orchestrator) Stop() {
	o.machine.Stop()
	o.enroll = enrollment{}
	if o.mode != ModeIdle {
		logging.Component("kiosk").WithField("mode", ModeIdle.String()).Info("Mode changed")
	}
	o.mode = ModeIdle
	o.last = idleRender()
}

// FinishEnrollment trains the recognizer once the enrollment quota was
// reached and returns to idle. It returns the enrolled identity.
func (o *Orchestrator) FinishEnrollment() (string, error) {
	if !o.enroll.pending {
		return "", ErrNoPendingTraining
	}
	identity := o.enroll.identity
	o.enroll = enrollment{}
	o.mode = ModeIdle
	o.last = idleRender()

	if err := o.enroller.Train(); err != nil {
		logging.Component("kiosk").WithError(err).WithField("user", identity).Error("Training failed")
		return identity, fmt.Errorf("train after enrolling %s: %w", identity, err)
	}
	logging.Component("kiosk").WithField("user", identity).Info("User enrolled")
	return identity, nil
}

// Process handles one frame and returns what to display.
func (o *Orchestrator) Process(frame image.Image, det facemesh.Detection) Render {
	var r Render
	switch o.mode {
	case ModeEnroll:
		r = o.processEnrollment(frame, det)
	case ModeSecurity:
		r = o.processSecurity(frame, det)
	default:
		r = idleRender()
	}
	o.last = r
	return r
}

// Snapshot returns the state after the last processed frame.
func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		Mode:     o.mode,
		Liveness: o.machine.Status(),
		Render:   o.last,
	}
	if o.mode == ModeEnroll {
		s.Enrolled = o.enroll.count
		s.Quota = o.quota
	}
	return s
}

func (o *Orchestrator) processEnrollment(frame image.Image, det facemesh.Detection) Render {
	if o.enroll.pending {
		return trainingRender()
	}

	r := Render{
		Headline: fmt.Sprintf("REC: %d/%d", o.enroll.count, o.quota),
		Subline:  o.enroll.identity,
		Color:    Green,
	}
	if !det.Found {
		return r
	}
	r.Box, r.BoxColor, r.BoxThickness = det.Box, Green, 2

	if o.enroller.SaveSample(frame, det.Box, o.enroll.identity, o.enroll.count) {
		o.enroll.count++
	}
	if o.enroll.count >= o.quota {
		o.enroll.pending = true
		logging.Component("kiosk").WithFields(logging.Fields{
			"user":    o.enroll.identity,
			"samples": o.enroll.count,
		}).Info("Enrollment quota reached")
		return trainingRender()
	}
	return r
}

func (o *Orchestrator) processSecurity(frame image.Image, det facemesh.Detection) Render {
	var m illumination.Measurements
	if det.Found {
		m = o.measurer.Measure(frame, det)
	}

	unknown := false
	if o.machine.State() == liveness.StateScanning {
		if det.Found {
			identity, score := o.recognizer.Recognize(frame, det.Box)
			if accepted(identity, score) {
				// Begin cannot fail on a scanning machine.
				_, _ = o.machine.Begin(identity, m.Brightness)
			} else {
				unknown = true
			}
		}
	} else {
		o.machine.Update(liveness.Sample{
			Present:     det.Found,
			Glare:       m.Glare,
			Brightness:  m.Brightness,
			LightCenter: m.LightCenter,
			LightEdge:   m.LightEdge,
		})
	}

	return o.securityRender(det, unknown)
}

func (o *Orchestrator) securityRender(det facemesh.Detection, unknown bool) Render {
	r := Render{
		Headline: "SYSTEM ACTIVE",
		Subline:  "Scanning...",
		Color:    White,
	}
	session, _ := o.machine.Session()

	switch o.machine.State() {
	case liveness.StateScanning:
		if unknown {
			r.Subline = "Unknown User"
			r.Color = Red
		}
		if det.Found {
			r.Box, r.BoxColor, r.BoxThickness = det.Box, Cyan, 2
		}

	case liveness.StateVerifying:
		r.Headline = "VERIFYING: " + session.Identity
		r.Color = Yellow
		r.Overlay = OverlayFor(session.Phase)
		switch session.Phase {
		case liveness.PhaseDark:
			r.Subline = "ANALYZING LIGHT..."
			if session.Attempts > 0 {
				r.Subline = fmt.Sprintf("ANALYZING LIGHT... (%s, attempt %d/%d)",
					session.Last.Reason, session.Attempts+1, session.Thresholds.MaxFlashAttempts)
			}
		case liveness.PhaseBright:
			r.Subline = "FLASHING..."
		}

	case liveness.StateGranted:
		r.Headline = "ACCESS GRANTED"
		r.Subline = fmt.Sprintf("Welcome, %s!", session.Identity)
		r.Color = Green
		if det.Found {
			r.Box, r.BoxColor, r.BoxThickness = det.Box, Green, 4
		}

	case liveness.StateDenied:
		r.Headline = "ACCESS DENIED"
		r.Subline = "SPOOFING DETECTED"
		r.Color = Red
		if det.Found {
			r.Box, r.BoxColor, r.BoxThickness = det.Box, Red, 4
		}
	}
	return r
}

// ValidIdentity reports whether name can be enrolled: not one of the
// reserved recognizer results and accepted by the sample store.
func ValidIdentity(name string) bool {
	if name == UnknownIdentity || name == ErrorIdentity {
		return false
	}
	return userid.Validate(name) == nil
}

func accepted(identity string, score float64) bool {
	if identity == "" || identity == UnknownIdentity || identity == ErrorIdentity {
		return false
	}
	return score > AcceptScore
}

func idleRender() Render {
	return Render{Headline: "IDLE MODE", Color: Gray}
}

func trainingRender() Render {
	return Render{
		Headline:        "TRAINING MODEL...",
		Color:           Green,
		Overlay:         TrainingOverlay,
		TrainingPending: true,
	}
}
