package recognition

import (
	"errors"
	"sort"
	"time"
)

// ErrModelNotFound is returned by a SampleStore that holds no trained model.
var ErrModelNotFound = errors.New("trained model not found")

// ErrNoTrainingData is returned when training finds no usable sample.
var ErrNoTrainingData = errors.New("no usable enrollment samples")

// ModelVersion is the version written into new models.
const ModelVersion = 1

// Embedding is the descriptor of one enrollment sample.
type Embedding struct {
	Identity string     `json:"identity"`
	Sample   string     `json:"sample"`
	Vector   Descriptor `json:"vector"`
}

// Model is the trained gallery: every usable sample of every user.
type Model struct {
	Version    int         `json:"version"`
	TrainedAt  time.Time   `json:"trained_at"`
	Embeddings []Embedding `json:"embeddings"`
}

// Identities returns the sorted set of identities in the model.
func (m *Model) Identities() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range m.Embeddings {
		if !seen[e.Identity] {
			seen[e.Identity] = true
			ids = append(ids, e.Identity)
		}
	}
	sort.Strings(ids)
	return ids
}

// Sample is one stored enrollment image.
type Sample struct {
	Name string
	JPEG []byte
}

// SampleStore persists enrollment samples and the trained model.
type SampleStore interface {
	SaveSample(identity string, index int, jpeg []byte) error
	LoadSamples(identity string) ([]Sample, error)
	ListUsers() ([]string, error)
	DeleteUser(identity string) error
	SaveModel(m *Model) error
	LoadModel() (*Model, error)
	DeleteModel() error
}
