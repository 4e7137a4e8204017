package kiosk

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/illumination"
	"github.com/MrCodeEU/lpad/pkg/liveness"
)

type stubRecognizer struct {
	identity string
	score    float64
	trained  bool
	calls    int
}

func (s *stubRecognizer) Recognize(image.Image, image.Rectangle) (string, float64) {
	s.calls++
	return s.identity, s.score
}

func (s *stubRecognizer) Trained() bool { return s.trained }

type stubEnroller struct {
	saved      []int
	fail       bool
	trainCalls int
	trainErr   error
}

func (s *stubEnroller) SaveSample(_ image.Image, _ image.Rectangle, _ string, index int) bool {
	if s.fail {
		return false
	}
	s.saved = append(s.saved, index)
	return true
}

func (s *stubEnroller) Train() error {
	s.trainCalls++
	return s.trainErr
}

type stubMeasurer struct {
	m illumination.Measurements
}

func (s *stubMeasurer) Measure(image.Image, facemesh.Detection) illumination.Measurements {
	return s.m
}

type fixture struct {
	orch  *Orchestrator
	clk   *clock.Manual
	rec   *stubRecognizer
	enr   *stubEnroller
	meas  *stubMeasurer
	frame *image.RGBA
}

var faceDet = facemesh.Detection{Found: true, Box: image.Rect(10, 10, 60, 60)}

func newFixture(quota int) *fixture {
	clk := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		clk:   clk,
		rec:   &stubRecognizer{identity: UnknownIdentity, trained: true},
		enr:   &stubEnroller{},
		meas:  &stubMeasurer{},
		frame: image.NewRGBA(image.Rect(0, 0, 100, 100)),
	}
	f.orch = New(liveness.NewMachine(liveness.DefaultThresholds(), clk), f.rec, f.enr, f.meas, quota)
	return f
}

func (f *fixture) measure(brightness, center, edge float64) {
	f.meas.m = illumination.Measurements{Brightness: brightness, LightCenter: center, LightEdge: edge}
}

func (f *fixture) step(d time.Duration) Render {
	f.clk.Advance(d)
	return f.orch.Process(f.frame, faceDet)
}

// flashCycle runs the dark and bright phases and returns the render of the
// evaluation frame.
func (f *fixture) flashCycle(bright illumination.Measurements) Render {
	f.measure(40, 0, 0)
	for i := 0; i < 7; i++ {
		f.step(100 * time.Millisecond)
	}
	f.meas.m = bright
	f.step(400 * time.Millisecond)
	return f.step(500 * time.Millisecond)
}

func (f *fixture) recognizeAlice() Render {
	f.rec.identity, f.rec.score = "alice", 80
	f.measure(100, 0, 0)
	return f.orch.Process(f.frame, faceDet)
}

var (
	liveFace = illumination.Measurements{Brightness: 70, LightCenter: 80, LightEdge: 40}
	flatFace = illumination.Measurements{Brightness: 70, LightCenter: 60, LightEdge: 50}
)

func TestOrchestrator_Idle(t *testing.T) {
	f := newFixture(0)

	r := f.orch.Process(f.frame, faceDet)
	assert.Equal(t, "IDLE MODE", r.Headline)
	assert.Equal(t, Gray, r.Color)
	assert.False(t, r.Overlay.Active())
	assert.Equal(t, 0, f.rec.calls)
}

func TestOrchestrator_StartSecurityUntrained(t *testing.T) {
	f := newFixture(0)
	f.rec.trained = false

	err := f.orch.StartSecurity()
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Equal(t, ModeIdle, f.orch.Mode())
}

func TestOrchestrator_ScanningNoFace(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())

	r := f.orch.Process(f.frame, facemesh.NotFound)
	assert.Equal(t, "SYSTEM ACTIVE", r.Headline)
	assert.Equal(t, "Scanning...", r.Subline)
	assert.Equal(t, White, r.Color)
	assert.False(t, r.HasBox())
	assert.Equal(t, 0, f.rec.calls)
}

func TestOrchestrator_UnknownIsIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		score    float64
	}{
		{"unknown", UnknownIdentity, 0},
		{"error", ErrorIdentity, 99},
		{"score at threshold", "alice", 50},
		{"low score", "alice", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(0)
			require.NoError(t, f.orch.StartSecurity())
			f.rec.identity, f.rec.score = tt.identity, tt.score

			for i := 0; i < 50; i++ {
				r := f.step(33 * time.Millisecond)
				assert.Equal(t, "Unknown User", r.Subline)
				assert.Equal(t, Red, r.Color)
				assert.Equal(t, Cyan, r.BoxColor)
			}
			assert.Equal(t, liveness.StateScanning, f.orch.Machine().State())
			assert.Equal(t, 50, f.rec.calls)
		})
	}
}

func TestOrchestrator_RecognitionStartsVerification(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())

	r := f.recognizeAlice()
	assert.Equal(t, "VERIFYING: alice", r.Headline)
	assert.Equal(t, "ANALYZING LIGHT...", r.Subline)
	assert.Equal(t, Yellow, r.Color)
	assert.Equal(t, DarkOverlay, r.Overlay)
	assert.False(t, r.HasBox())

	s, ok := f.orch.Machine().Session()
	require.True(t, ok)
	assert.Equal(t, 100.0, s.Baseline)
	assert.Equal(t, 130.0, s.Thresholds.MaxDarkVal)

	// Later frames neither re-recognize nor re-adapt.
	f.measure(200, 0, 0)
	f.step(100 * time.Millisecond)
	s, _ = f.orch.Machine().Session()
	assert.Equal(t, 130.0, s.Thresholds.MaxDarkVal)
	assert.Equal(t, 1, f.rec.calls)
}

func TestOrchestrator_FlashOverlaysFollowPhase(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()

	f.measure(40, 0, 0)
	var r Render
	for i := 0; i < 6; i++ {
		r = f.step(100 * time.Millisecond)
		assert.Equal(t, DarkOverlay, r.Overlay)
	}
	r = f.step(100 * time.Millisecond)
	assert.Equal(t, BrightOverlay, r.Overlay)
	assert.Equal(t, "FLASHING...", r.Subline)
}

func TestOrchestrator_Grant(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()

	r := f.flashCycle(liveFace)
	assert.Equal(t, "ACCESS GRANTED", r.Headline)
	assert.Equal(t, "Welcome, alice!", r.Subline)
	assert.Equal(t, Green, r.Color)
	assert.Equal(t, Green, r.BoxColor)
	assert.Equal(t, 4, r.BoxThickness)
	assert.False(t, r.Overlay.Active())

	// Reauthentication after the interval.
	f.clk.AdvanceSeconds(30)
	f.clk.Advance(time.Millisecond)
	f.rec.identity = UnknownIdentity
	r = f.orch.Process(f.frame, facemesh.NotFound)
	assert.Equal(t, "SYSTEM ACTIVE", r.Headline)
	assert.Equal(t, liveness.StateScanning, f.orch.Machine().State())
}

func TestOrchestrator_RetryNamesReason(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()

	r := f.flashCycle(flatFace)
	assert.Equal(t, "VERIFYING: alice", r.Headline)
	assert.Contains(t, r.Subline, "Flat Face")
	assert.Contains(t, r.Subline, "attempt 2/3")
	assert.Equal(t, DarkOverlay, r.Overlay)
}

func TestOrchestrator_Denied(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()

	var r Render
	for i := 0; i < 3; i++ {
		r = f.flashCycle(flatFace)
	}
	assert.Equal(t, "ACCESS DENIED", r.Headline)
	assert.Equal(t, "SPOOFING DETECTED", r.Subline)
	assert.Equal(t, Red, r.Color)
	assert.Equal(t, 4, r.BoxThickness)

	// Recognition is not attempted while denied.
	calls := f.rec.calls
	f.step(time.Second)
	assert.Equal(t, calls, f.rec.calls)

	f.clk.Advance(liveness.DenialHold)
	r = f.orch.Process(f.frame, facemesh.NotFound)
	assert.Equal(t, "SYSTEM ACTIVE", r.Headline)
}

func TestOrchestrator_StopDiscardsSession(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()
	f.step(100 * time.Millisecond)

	f.orch.Stop()
	assert.Equal(t, ModeIdle, f.orch.Mode())
	assert.Equal(t, liveness.StateScanning, f.orch.Machine().State())

	r := f.step(100 * time.Millisecond)
	assert.Equal(t, "IDLE MODE", r.Headline)
	assert.False(t, r.Overlay.Active())
}

func TestOrchestrator_StartEnrollmentValidation(t *testing.T) {
	f := newFixture(0)

	for _, name := range []string{"", "   ", UnknownIdentity, ErrorIdentity, "a/b", "..", `c\d`, ".bob"} {
		err := f.orch.StartEnrollment(name)
		assert.ErrorIs(t, err, ErrInvalidIdentity, "name %q", name)
	}
	assert.Equal(t, ModeIdle, f.orch.Mode())

	require.NoError(t, f.orch.StartEnrollment("  bob "))
	assert.Equal(t, ModeEnroll, f.orch.Mode())
}

func TestOrchestrator_Enrollment(t *testing.T) {
	f := newFixture(3)
	require.NoError(t, f.orch.StartEnrollment("bob"))

	r := f.orch.Process(f.frame, facemesh.NotFound)
	assert.Equal(t, "REC: 0/3", r.Headline)
	assert.Empty(t, f.enr.saved)

	r = f.step(10 * time.Millisecond)
	assert.Equal(t, "REC: 0/3", r.Headline)
	assert.Equal(t, Green, r.BoxColor)
	assert.Equal(t, 1, f.orch.Snapshot().Enrolled)

	f.step(10 * time.Millisecond)
	r = f.step(10 * time.Millisecond)
	assert.True(t, r.TrainingPending)
	assert.Equal(t, "TRAINING MODEL...", r.Headline)
	assert.Equal(t, []int{0, 1, 2}, f.enr.saved)

	// No more samples and no training inside Process.
	r = f.step(10 * time.Millisecond)
	assert.True(t, r.TrainingPending)
	assert.Len(t, f.enr.saved, 3)
	assert.Equal(t, 0, f.enr.trainCalls)

	assert.ErrorIs(t, f.orch.StartSecurity(), ErrTrainingPending)

	name, err := f.orch.FinishEnrollment()
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
	assert.Equal(t, 1, f.enr.trainCalls)
	assert.Equal(t, ModeIdle, f.orch.Mode())

	_, err = f.orch.FinishEnrollment()
	assert.ErrorIs(t, err, ErrNoPendingTraining)
	assert.Equal(t, 1, f.enr.trainCalls)
}

func TestOrchestrator_EnrollmentSaveFailure(t *testing.T) {
	f := newFixture(2)
	f.enr.fail = true
	require.NoError(t, f.orch.StartEnrollment("bob"))

	for i := 0; i < 5; i++ {
		r := f.step(10 * time.Millisecond)
		assert.Equal(t, "REC: 0/2", r.Headline)
	}
	assert.False(t, f.orch.Snapshot().Render.TrainingPending)
}

func TestOrchestrator_TrainingError(t *testing.T) {
	f := newFixture(1)
	f.enr.trainErr = errors.New("no descriptors")
	require.NoError(t, f.orch.StartEnrollment("bob"))
	f.step(10 * time.Millisecond)

	name, err := f.orch.FinishEnrollment()
	assert.Equal(t, "bob", name)
	assert.Error(t, err)
	assert.Equal(t, ModeIdle, f.orch.Mode())
}

func TestOrchestrator_Snapshot(t *testing.T) {
	f := newFixture(0)
	require.NoError(t, f.orch.StartSecurity())
	f.recognizeAlice()

	s := f.orch.Snapshot()
	assert.Equal(t, ModeSecurity, s.Mode)
	assert.Equal(t, liveness.StateVerifying, s.Liveness.State)
	assert.Equal(t, "alice", s.Liveness.Identity)
	assert.Equal(t, "VERIFYING: alice", s.Render.Headline)
}

func TestValidIdentity(t *testing.T) {
	assert.True(t, ValidIdentity("alice"))
	assert.True(t, ValidIdentity("Анна"))
	assert.False(t, ValidIdentity("Unknown"))
	assert.False(t, ValidIdentity("x/y"))
	assert.False(t, ValidIdentity(".bob"))
	assert.False(t, ValidIdentity(""))
	assert.True(t, ValidIdentity("bob.smith"))
}
