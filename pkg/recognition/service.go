package recognition

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/MrCodeEU/lpad/pkg/logging"
)

// Results reported by Recognize when nobody was recognized.
const (
	Unknown = "Unknown"
	Error   = "Error"
)

// Service recognizes faces against the trained gallery, stores enrollment
// samples and trains the gallery from them.
type Service struct {
	rec   *DlibRecognizer
	store SampleStore

	mu    sync.RWMutex
	model *Model
}

// NewService creates an untrained Service. Call Load to pick up a
// previously trained model.
func NewService(rec *DlibRecognizer, store SampleStore) *Service {
	return &Service{rec: rec, store: store}
}

// Load reads the trained model from the store. A missing model is not an
// error; the service simply stays untrained.
func (s *Service) Load() error {
	m, err := s.store.LoadModel()
	if errors.Is(err, ErrModelNotFound) {
		logging.Info("No trained model found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()

	logging.WithFields(logging.Fields{
		"users":   len(m.Identities()),
		"samples": len(m.Embeddings),
	}).Info("Trained model loaded")
	return nil
}

// Trained reports whether a model is available.
func (s *Service) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil && len(s.model.Embeddings) > 0
}

// Model returns the current model, or nil.
func (s *Service) Model() *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Recognize identifies the face inside box. It returns Unknown with score 0
// when untrained or when nothing matches, and Error with score 0 when the
// engine fails.
func (s *Service) Recognize(frame image.Image, box image.Rectangle) (string, float64) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil || len(model.Embeddings) == 0 {
		return Unknown, 0
	}

	crop := FaceCrop(frame, box)
	if crop == nil {
		return Unknown, 0
	}
	data, err := EncodeJPEG(crop)
	if err != nil {
		logging.WithError(err).Warn("Failed to encode face crop")
		return Error, 0
	}

	f, err := s.rec.DetectSingleFace(data)
	switch {
	case errors.Is(err, ErrNoFaceDetected):
		return Unknown, 0
	case err != nil:
		logging.WithError(err).Warn("Recognition failed")
		return Error, 0
	}

	idx, dist, ok := s.rec.FindBestMatch(f.Descriptor, model.Embeddings)
	if !ok {
		logging.Debugf("No match within tolerance (best distance %.3f)", dist)
		return Unknown, 0
	}
	return model.Embeddings[idx].Identity, Score(dist)
}

// SaveSample stores the gray crop of box as enrollment sample index of
// identity. It reports whether the sample was stored.
func (s *Service) SaveSample(frame image.Image, box image.Rectangle, identity string, index int) bool {
	crop := FaceCrop(frame, box)
	if crop == nil {
		return false
	}
	data, err := EncodeJPEG(crop)
	if err != nil {
		logging.WithError(err).Warn("Failed to encode enrollment sample")
		return false
	}
	if err := s.store.SaveSample(identity, index, data); err != nil {
		logging.WithError(err).WithField("user", identity).Warn("Failed to save enrollment sample")
		return false
	}
	return true
}

// Train computes one descriptor per stored sample, persists the model and
// swaps it in. Samples without a detectable face are skipped.
func (s *Service) Train() error {
	users, err := s.store.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	sort.Strings(users)

	model := &Model{Version: ModelVersion, TrainedAt: time.Now()}
	skipped := 0
	for _, user := range users {
		samples, err := s.store.LoadSamples(user)
		if err != nil {
			return fmt.Errorf("load samples of %s: %w", user, err)
		}
		for _, sample := range samples {
			f, err := s.rec.DetectSingleFace(sample.JPEG)
			if err != nil {
				skipped++
				logging.Debugf("Skipping sample %s/%s: %v", user, sample.Name, err)
				continue
			}
			model.Embeddings = append(model.Embeddings, Embedding{
				Identity: user,
				Sample:   sample.Name,
				Vector:   f.Descriptor,
			})
		}
	}

	if len(model.Embeddings) == 0 {
		return ErrNoTrainingData
	}
	if err := s.store.SaveModel(model); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	logging.WithFields(logging.Fields{
		"users":   len(model.Identities()),
		"samples": len(model.Embeddings),
		"skipped": skipped,
	}).Info("Model trained")
	return nil
}

// Users returns the identities with stored samples.
func (s *Service) Users() ([]string, error) {
	return s.store.ListUsers()
}

// DeleteUser removes identity's samples and retrains. When no user is
// left the model is dropped.
func (s *Service) DeleteUser(identity string) error {
	if err := s.store.DeleteUser(identity); err != nil {
		return err
	}
	logging.WithField("user", identity).Info("User removed")

	users, err := s.store.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) > 0 {
		err := s.Train()
		if !errors.Is(err, ErrNoTrainingData) {
			return err
		}
	}

	s.mu.Lock()
	s.model = nil
	s.mu.Unlock()

	if err := s.store.DeleteModel(); err != nil && !errors.Is(err, ErrModelNotFound) {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}
