// Package config provides configuration management for the kiosk.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/lpad/pkg/liveness"
)

// Default locations searched by LoadDefault.
const (
	SystemConfigPath = "/etc/lpad/lpad.yaml"
	userConfigPath   = ".config/lpad/lpad.yaml"
)

// Config holds all kiosk configuration.
type Config struct {
	Camera      CameraConfig        `yaml:"camera"`
	Recognition RecognitionConfig   `yaml:"recognition"`
	Liveness    liveness.Thresholds `yaml:"liveness"`
	Enrollment  EnrollmentConfig    `yaml:"enrollment"`
	Storage     StorageConfig       `yaml:"storage"`
	Admin       AdminConfig         `yaml:"admin"`
	Status      StatusConfig        `yaml:"status"`
	Logging     LoggingConfig       `yaml:"logging"`
}

// CameraConfig holds camera settings.
type CameraConfig struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Mirror bool   `yaml:"mirror"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	ModelPath string  `yaml:"model_path"`
}

// EnrollmentConfig holds enrollment settings.
type EnrollmentConfig struct {
	Samples int `yaml:"samples"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// AdminConfig holds the location of the admin password hash.
type AdminConfig struct {
	SecretFile string `yaml:"secret_file"`
}

// StatusConfig holds the optional HTTP status server settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/lpad")
	return &Config{
		Camera: CameraConfig{
			Device: "/dev/video0",
			Width:  1280,
			Height: 720,
			FPS:    60,
			Mirror: true,
		},
		Recognition: RecognitionConfig{
			Tolerance: 0.6,
			ModelPath: filepath.Join(dataDir, "models"),
		},
		Liveness: liveness.DefaultThresholds(),
		Enrollment: EnrollmentConfig{
			Samples: 25,
		},
		Storage: StorageConfig{
			DataDir:           dataDir,
			EncryptionEnabled: true,
		},
		Admin: AdminConfig{
			SecretFile: filepath.Join(dataDir, "admin.secret"),
		},
		Status: StatusConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   filepath.Join(dataDir, "lpad.log"),
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(SystemConfigPath); err == nil {
		return Load(SystemConfigPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, userConfigPath)
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// Resolve loads path when it is set and falls back to LoadDefault.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	return LoadDefault()
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera FPS: %d", c.Camera.FPS)
	}

	if c.Recognition.Tolerance <= 0 || c.Recognition.Tolerance > 1 {
		return fmt.Errorf("tolerance must be in (0, 1], got %f", c.Recognition.Tolerance)
	}

	if err := c.Liveness.Validate(); err != nil {
		return fmt.Errorf("liveness: %w", err)
	}

	if c.Enrollment.Samples <= 0 {
		return fmt.Errorf("enrollment samples must be positive, got %d", c.Enrollment.Samples)
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status server enabled without an address")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Camera.Device = ExpandPath(c.Camera.Device)
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Admin.SecretFile = ExpandPath(c.Admin.SecretFile)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for storage and logging.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	usersDir := filepath.Join(c.Storage.DataDir, "users")
	if err := os.MkdirAll(usersDir, 0700); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}

	if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}
