package recognition

import (
	"sort"

	"github.com/Kagami/go-face"
)

type MockFaceEngine struct {
	RecognizeFunc func(data []byte) ([]face.Face, error)
	CloseFunc     func()
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

// memStore is an in-memory SampleStore.
type memStore struct {
	samples map[string][]Sample
	model   *Model
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{samples: make(map[string][]Sample)}
}

func (m *memStore) SaveSample(identity string, index int, data []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.samples[identity] = append(m.samples[identity], Sample{Name: string(rune('a' + index)), JPEG: data})
	return nil
}

func (m *memStore) LoadSamples(identity string) ([]Sample, error) {
	return m.samples[identity], nil
}

func (m *memStore) ListUsers() ([]string, error) {
	var users []string
	for u := range m.samples {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (m *memStore) DeleteUser(identity string) error {
	delete(m.samples, identity)
	return nil
}

func (m *memStore) SaveModel(model *Model) error {
	m.model = model
	return nil
}

func (m *memStore) LoadModel() (*Model, error) {
	if m.model == nil {
		return nil, ErrModelNotFound
	}
	return m.model, nil
}

func (m *memStore) DeleteModel() error {
	if m.model == nil {
		return ErrModelNotFound
	}
	m.model = nil
	return nil
}
