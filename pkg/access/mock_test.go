package access

import (
	"image"
	"time"

	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/illumination"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/liveness"
)

// MockSource implements camera.Source for testing
type MockSource struct {
	ReadFunc  func() (camera.Frame, error)
	CloseFunc func() error
	reads     int
}

func (m *MockSource) Read() (camera.Frame, error) {
	m.reads++
	if m.ReadFunc != nil {
		return m.ReadFunc()
	}
	return camera.Frame{Image: image.NewRGBA(image.Rect(0, 0, 64, 64)), Seq: uint64(m.reads)}, nil
}

func (m *MockSource) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// clockedSource returns frames 100ms apart on clk, up to limit frames.
func clockedSource(clk *clock.Manual, limit int) *MockSource {
	src := &MockSource{}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	src.ReadFunc = func() (camera.Frame, error) {
		if limit > 0 && src.reads > limit {
			return camera.Frame{}, camera.ErrEndOfStream
		}
		clk.Advance(100 * time.Millisecond)
		return camera.Frame{Image: img, Seq: uint64(src.reads), Timestamp: clk.Now()}, nil
	}
	return src
}

// MockDetector implements facemesh.Detector for testing
type MockDetector struct {
	DetectFunc func(frame image.Image) (facemesh.Detection, error)
}

var testFace = facemesh.Detection{Found: true, Box: image.Rect(8, 8, 56, 56)}

func (m *MockDetector) Detect(frame image.Image) (facemesh.Detection, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return testFace, nil
}

// MockDisplay implements Display for testing
type MockDisplay struct {
	ShowFunc func(frame camera.Frame, r kiosk.Render) Action
	renders  []kiosk.Render
}

func (m *MockDisplay) Show(frame camera.Frame, r kiosk.Render) Action {
	m.renders = append(m.renders, r)
	if m.ShowFunc != nil {
		return m.ShowFunc(frame, r)
	}
	return ActionNone
}

// MockKiosk implements Kiosk for testing
type MockKiosk struct {
	ProcessFunc          func(frame image.Image, det facemesh.Detection) kiosk.Render
	StartSecurityFunc    func() error
	FinishEnrollmentFunc func() (string, error)
	SnapshotFunc         func() kiosk.Snapshot

	detections    []facemesh.Detection
	startCalls    int
	stopCalls     int
	finishCalls   int
	snapshotCalls int
}

func (m *MockKiosk) Process(frame image.Image, det facemesh.Detection) kiosk.Render {
	m.detections = append(m.detections, det)
	if m.ProcessFunc != nil {
		return m.ProcessFunc(frame, det)
	}
	return kiosk.Render{Headline: "IDLE MODE"}
}

func (m *MockKiosk) StartSecurity() error {
	m.startCalls++
	if m.StartSecurityFunc != nil {
		return m.StartSecurityFunc()
	}
	return nil
}

func (m *MockKiosk) Stop() {
	m.stopCalls++
}

func (m *MockKiosk) FinishEnrollment() (string, error) {
	m.finishCalls++
	if m.FinishEnrollmentFunc != nil {
		return m.FinishEnrollmentFunc()
	}
	return "alice", nil
}

func (m *MockKiosk) Snapshot() kiosk.Snapshot {
	m.snapshotCalls++
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc()
	}
	return kiosk.Snapshot{}
}

// MockPublisher implements Publisher for testing
type MockPublisher struct {
	snapshots []kiosk.Snapshot
}

func (m *MockPublisher) Publish(s kiosk.Snapshot) {
	m.snapshots = append(m.snapshots, s)
}

// MockRecorder implements Recorder for testing
type MockRecorder struct {
	frames      int
	enrollments []error
}

func (m *MockRecorder) ObserveFrame(time.Duration) {
	m.frames++
}

func (m *MockRecorder) ObserveEnrollment(err error) {
	m.enrollments = append(m.enrollments, err)
}

type fakeRecognizer struct {
	identity string
	score    float64
	trained  bool
}

func (f *fakeRecognizer) Recognize(image.Image, image.Rectangle) (string, float64) {
	return f.identity, f.score
}

func (f *fakeRecognizer) Trained() bool { return f.trained }

type fakeEnroller struct{}

func (fakeEnroller) SaveSample(image.Image, image.Rectangle, string, int) bool { return true }
func (fakeEnroller) Train() error { return nil }

// phaseMeasurer reports a bright scene before verification, a dark face
// during the dark phase and bright during the flash.
type phaseMeasurer struct {
	machine *liveness.Machine
	bright  illumination.Measurements
}

func (p *phaseMeasurer) Measure(image.Image, facemesh.Detection) illumination.Measurements {
	switch p.machine.Phase() {
	case liveness.PhaseDark:
		return illumination.Measurements{Brightness: 40}
	case liveness.PhaseBright:
		return p.bright
	}
	return illumination.Measurements{Brightness: 100}
}

var (
	liveFace = illumination.Measurements{Brightness: 70, LightCenter: 80, LightEdge: 40}
	flatFace = illumination.Measurements{Brightness: 70, LightCenter: 60, LightEdge: 50}
)

type verifyFixture struct {
	clk  *clock.Manual
	orch *kiosk.Orchestrator
	rec  *fakeRecognizer
	meas *phaseMeasurer
}

func newVerifyFixture(bright illumination.Measurements) *verifyFixture {
	clk := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	machine := liveness.NewMachine(liveness.DefaultThresholds(), clk)
	f := &verifyFixture{
		clk:  clk,
		rec:  &fakeRecognizer{identity: "alice", score: 80, trained: true},
		meas: &phaseMeasurer{machine: machine, bright: bright},
	}
	f.orch = kiosk.New(machine, f.rec, fakeEnroller{}, f.meas, 0)
	return f
}
