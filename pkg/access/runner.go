package access

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/liveness"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

// MaxReadFailures is the number of consecutive failed camera reads after
// which the runner gives up.
const MaxReadFailures = 30

// Kiosk is the part of the orchestrator the runner drives.
// *kiosk.Orchestrator implements it.
type Kiosk interface {
	Process(frame image.Image, det facemesh.Detection) kiosk.Render
	StartSecurity() error
	Stop()
	FinishEnrollment() (string, error)
	Snapshot() kiosk.Snapshot
}

// Action is a request coming back from the display, usually a key press.
type Action int

const (
	ActionNone Action = iota
	ActionStartSecurity
	ActionStop
	ActionQuit
)

// Display shows a frame with its render and reports what the operator asked for.
type Display interface {
	Show(frame camera.Frame, r kiosk.Render) Action
}

// Publisher receives the kiosk snapshot after every frame.
type Publisher interface {
	Publish(kiosk.Snapshot)
}

// Recorder receives per-frame and per-enrollment measurements.
type Recorder interface {
	ObserveFrame(d time.Duration)
	ObserveEnrollment(err error)
}

// Tick is the outcome of one processed frame.
type Tick struct {
	Frame     camera.Frame
	Detection facemesh.Detection
	Render    kiosk.Render
}

// Runner pulls frames from a source through the detector and the kiosk.
type Runner struct {
	source    camera.Source
	detector  facemesh.Detector
	kiosk     Kiosk
	publisher Publisher
	recorder  Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher publishes a snapshot after every frame.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithRecorder records frame timings and enrollment results.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a Runner.
func NewRunner(source camera.Source, detector facemesh.Detector, k Kiosk, opts ...Option) *Runner {
	r := &Runner{source: source, detector: detector, kiosk: k}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step reads and processes a single frame. A detector error is logged and
// treated as a frame without a face.
func (r *Runner) Step() (Tick, error) {
	frame, err := r.source.Read()
	if err != nil {
		return Tick{}, err
	}

	start := time.Now()
	det, err := r.detector.Detect(frame.Image)
	if err != nil {
		logging.Component("access").WithError(err).WithField("seq", frame.Seq).Debug("Detection failed")
		det = facemesh.NotFound
	}

	render := r.kiosk.Process(frame.Image, det)

	if r.publisher != nil {
		r.publisher.Publish(r.kiosk.Snapshot())
	}
	if r.recorder != nil {
		r.recorder.ObserveFrame(time.Since(start))
	}
	return Tick{Frame: frame, Detection: det, Render: render}, nil
}

// next reads frames until one is processed, tolerating up to MaxReadFailures
// consecutive read errors.
func (r *Runner) next(ctx context.Context) (Tick, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return Tick{}, err
		}
		tick, err := r.Step()
		if err == nil {
			return tick, nil
		}
		if errors.Is(err, camera.ErrEndOfStream) {
			return Tick{}, err
		}
		failures++
		logging.Component("access").WithError(err).WithField("failures", failures).Warn("Failed to read frame")
		if failures >= MaxReadFailures {
			return Tick{}, errors.Join(ErrTooManyReadFailures, err)
		}
	}
}

// Run processes frames until ctx is cancelled, the source ends or the
// display asks to quit. Training after an enrollment happens here, after
// the training notice has been shown.
func (r *Runner) Run(ctx context.Context, display Display) error {
	log := logging.Component("access")
	log.Info("Kiosk loop started")
	defer log.Info("Kiosk loop stopped")

	for {
		tick, err := r.next(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrEndOfStream) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		action := ActionNone
		if display != nil {
			action = display.Show(tick.Frame, tick.Render)
		}

		if tick.Render.TrainingPending {
			r.finishEnrollment()
		}

		switch action {
		case ActionStartSecurity:
			if err := r.kiosk.StartSecurity(); err != nil {
				log.WithError(err).Warn("Cannot enter security mode")
			}
		case ActionStop:
			r.kiosk.Stop()
		case ActionQuit:
			return nil
		}
	}
}

func (r *Runner) finishEnrollment() {
	identity, err := r.kiosk.FinishEnrollment()
	if r.recorder != nil {
		r.recorder.ObserveEnrollment(err)
	}
	if err != nil {
		logging.Component("access").WithError(err).WithField("user", identity).Error("Enrollment failed")
	}
}

// Verify runs one security session until access is granted or denied, or
// until timeout. The display is optional.
func (r *Runner) Verify(ctx context.Context, display Display, timeout time.Duration) AuthResult {
	start := time.Now()
	result := AuthResult{}
	log := logging.Component("access")

	finish := func(code ErrorCode, retry bool, reason string) AuthResult {
		authErr := NewAuthError(code, retry)
		if reason != "" {
			authErr.Details["reason"] = reason
		}
		result.Error = authErr
		result.Reason = reason
		result.Duration = time.Since(start)
		log.WithFields(logging.Fields{
			"code":     string(code),
			"reason":   reason,
			"duration": result.Duration.String(),
		}).Warn("Verification failed")
		return result
	}

	if err := r.kiosk.StartSecurity(); err != nil {
		if errors.Is(err, kiosk.ErrTrainingPending) {
			return finish(ErrCodeNotEnrolled, true, "model training pending")
		}
		return finish(ErrCodeNotEnrolled, false, "no trained model")
	}
	defer r.kiosk.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sawFace := false
	recognized := false

	// ended classifies a verification that ran out of frames or time.
	ended := func() AuthResult {
		switch {
		case recognized:
			return finish(ErrCodeTimeout, true, "flash check did not finish")
		case sawFace:
			return finish(ErrCodeNotRecognized, true, "face not recognized")
		default:
			return finish(ErrCodeNoFace, true, "no face detected")
		}
	}

	for {
		tick, err := r.next(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return finish(ErrCodeCancelled, false, "cancelled")
		case errors.Is(err, camera.ErrEndOfStream), errors.Is(err, context.DeadlineExceeded):
			return ended()
		case err != nil:
			return finish(ErrCodeCamera, false, err.Error())
		}

		if tick.Detection.Found {
			sawFace = true
		}

		if display != nil {
			switch display.Show(tick.Frame, tick.Render) {
			case ActionStop, ActionQuit:
				return finish(ErrCodeCancelled, false, "cancelled")
			}
		}

		st := r.kiosk.Snapshot().Liveness
		switch st.State {
		case liveness.StateVerifying:
			recognized = true
			result.Username = st.Identity
		case liveness.StateGranted:
			result.Success = true
			result.Username = st.Identity
			result.Attempts = st.Attempts + 1
			result.Reason = "granted"
			result.Duration = time.Since(start)
			log.WithFields(logging.Fields{
				"user":     st.Identity,
				"attempts": result.Attempts,
				"duration": result.Duration.String(),
			}).Info("Verification succeeded")
			return result
		case liveness.StateDenied:
			result.Username = st.Identity
			result.Attempts = st.Attempts
			return finish(ErrCodeLiveness, false, string(st.LastReason))
		}
	}
}
