package access

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/config"
	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/illumination"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/liveness"
	"github.com/MrCodeEU/lpad/pkg/logging"
	"github.com/MrCodeEU/lpad/pkg/metrics"
	"github.com/MrCodeEU/lpad/pkg/recognition"
	"github.com/MrCodeEU/lpad/pkg/status"
	"github.com/MrCodeEU/lpad/pkg/storage"
)

// System is a kiosk wired from configuration: storage, the dlib models, the
// liveness machine, metrics and the status board.
type System struct {
	Config     *config.Config
	Store      *storage.FileStorage
	Recognizer *recognition.DlibRecognizer
	Service    *recognition.Service
	Detector   *recognition.Detector
	Machine    *liveness.Machine
	Kiosk      *kiosk.Orchestrator
	Metrics    *metrics.Metrics
	Board      *status.Board
}

// NewSystem builds a System. clk drives the liveness machine; use
// clock.Real{} for a camera and a clock.Manual for replays.
func NewSystem(cfg *config.Config, clk clock.Clock) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	rec := recognition.NewRecognizer()
	rec.SetTolerance(cfg.Recognition.Tolerance)
	if err := rec.LoadModels(cfg.Recognition.ModelPath); err != nil {
		return nil, fmt.Errorf("%w (run 'lpad download-models')", err)
	}

	service := recognition.NewService(rec, store)
	if err := service.Load(); err != nil {
		_ = rec.Close()
		return nil, err
	}

	m := metrics.New()
	machine := liveness.NewMachine(cfg.Liveness, clk)
	machine.SetObserver(m)

	analyzer := illumination.NewAnalyzer(illumination.GlareParams{
		Threshold: cfg.Liveness.SpecularThreshold,
		Ratio:     cfg.Liveness.SpecularRatio,
	}, facemesh.Dlib5Layout)

	orch := kiosk.New(machine, m.InstrumentRecognizer(service), service, analyzer, cfg.Enrollment.Samples)

	logging.Component("access").WithFields(logging.Fields{
		"data_dir": cfg.Storage.DataDir,
		"trained":  service.Trained(),
		"samples":  cfg.Enrollment.Samples,
	}).Info("Kiosk initialized")

	return &System{
		Config:     cfg,
		Store:      store,
		Recognizer: rec,
		Service:    service,
		Detector:   recognition.NewDetector(rec),
		Machine:    machine,
		Kiosk:      orch,
		Metrics:    m,
		Board:      status.NewBoard(),
	}, nil
}

// Runner returns a runner over source that publishes to the board and
// records metrics.
func (s *System) Runner(source camera.Source) *Runner {
	return NewRunner(source, s.Detector, s.Kiosk,
		WithPublisher(s.Board),
		WithRecorder(s.Metrics),
	)
}

// CameraSettings returns the capture settings from the configuration.
func (s *System) CameraSettings() camera.Settings {
	c := s.Config.Camera
	return camera.Settings{
		Device: c.Device,
		Width:  c.Width,
		Height: c.Height,
		FPS:    c.FPS,
		Mirror: c.Mirror,
	}
}

// ServeStatus starts the status server in the background when it is
// enabled. It stops when ctx is cancelled.
func (s *System) ServeStatus(ctx context.Context) {
	if !s.Config.Status.Enabled {
		return
	}
	srv := status.NewServer(s.Config.Status.Addr, s.Board, s.Metrics.Registry())
	go func() {
		if err := srv.Serve(ctx); err != nil {
			logging.Component("status").WithError(err).Error("Status server failed")
		}
	}()
}

// Close releases the face models.
func (s *System) Close() {
	if s.Recognizer != nil {
		_ = s.Recognizer.Close()
	}
}
