package access

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/lpad/pkg/clock"
	"github.com/MrCodeEU/lpad/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.EncryptionEnabled = false
	cfg.Recognition.ModelPath = filepath.Join(dir, "missing-models")
	cfg.Logging.File = ""
	return cfg
}

func TestNewSystem_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Liveness.MaxFlashAttempts = 0

	_, err := NewSystem(cfg, clock.Real{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewSystem_MissingModels(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewSystem(cfg, clock.Real{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download-models")
}

func TestSystem_CameraSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Camera.Device = "2"
	cfg.Camera.Mirror = false

	s := &System{Config: cfg}
	settings := s.CameraSettings()
	assert.Equal(t, "2", settings.Device)
	assert.Equal(t, 1280, settings.Width)
	assert.Equal(t, 720, settings.Height)
	assert.Equal(t, 60, settings.FPS)
	assert.False(t, settings.Mirror)
}
