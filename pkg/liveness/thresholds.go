// Package liveness implements the flash-correlation liveness check.
//
// A verification session alternates a dark phase and a bright phase on the
// kiosk screen while the camera measures the face. A real face brightens
// under the flash and is lit more at the nose than at the cheeks; prints and
// screens either barely respond, respond too strongly, or respond flat.
package liveness

import (
	"fmt"
	"time"
)

// Thresholds is the set of numeric parameters of the liveness check.
// The process-wide value is treated as immutable; each session works on
// its own copy.
type Thresholds struct {
	MinFlashDiff      float64 `yaml:"min_flash_diff"`
	MaxFlashDiff      float64 `yaml:"max_flash_diff"`
	Min3DRatio        float64 `yaml:"min_3d_ratio"`
	MaxDarkVal        float64 `yaml:"max_dark_val"`
	SpecularThreshold float64 `yaml:"specular_threshold"`
	SpecularRatio     float64 `yaml:"specular_ratio"`
	MaxFlashAttempts  int     `yaml:"max_flash_attempts"`
	ReauthInterval    float64 `yaml:"reauth_interval"` // seconds
}

// DefaultThresholds returns the factory thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFlashDiff:      15.0,
		MaxFlashDiff:      160.0,
		Min3DRatio:        1.35,
		MaxDarkVal:        110.0,
		SpecularThreshold: 250,
		SpecularRatio:     0.01,
		MaxFlashAttempts:  3,
		ReauthInterval:    30.0,
	}
}

// Validate checks that the thresholds describe a usable check.
func (t Thresholds) Validate() error {
	if t.MinFlashDiff < 0 {
		return fmt.Errorf("min_flash_diff must not be negative, got %f", t.MinFlashDiff)
	}
	if t.MaxFlashDiff <= t.MinFlashDiff {
		return fmt.Errorf("max_flash_diff (%f) must be greater than min_flash_diff (%f)", t.MaxFlashDiff, t.MinFlashDiff)
	}
	if t.Min3DRatio <= 0 {
		return fmt.Errorf("min_3d_ratio must be positive, got %f", t.Min3DRatio)
	}
	if t.MaxDarkVal < 0 || t.MaxDarkVal > 255 {
		return fmt.Errorf("max_dark_val must be between 0 and 255, got %f", t.MaxDarkVal)
	}
	if t.SpecularThreshold < 0 || t.SpecularThreshold > 255 {
		return fmt.Errorf("specular_threshold must be between 0 and 255, got %f", t.SpecularThreshold)
	}
	if t.SpecularRatio <= 0 || t.SpecularRatio > 1 {
		return fmt.Errorf("specular_ratio must be in (0, 1], got %f", t.SpecularRatio)
	}
	if t.MaxFlashAttempts <= 0 {
		return fmt.Errorf("max_flash_attempts must be positive, got %d", t.MaxFlashAttempts)
	}
	if t.ReauthInterval <= 0 {
		return fmt.Errorf("reauth_interval must be positive, got %f", t.ReauthInterval)
	}
	return nil
}

// Reauth returns the reauthentication interval as a duration.
func (t Thresholds) Reauth() time.Duration {
	return time.Duration(t.ReauthInterval * float64(time.Second))
}

// Ambient adaptation constants.
const (
	ambientDarkMargin = 30.0
	brightAmbient     = 150.0
	brightAmbientDiff = 10.0
	dimAmbientDiff    = 15.0
)

// Adapt returns a copy of t tuned to the ambient brightness measured on the
// face when the identity was confirmed.
func (t Thresholds) Adapt(baseline float64) Thresholds {
	t.MaxDarkVal = baseline + ambientDarkMargin
	if baseline > brightAmbient {
		t.MinFlashDiff = brightAmbientDiff
	} else {
		t.MinFlashDiff = dimAmbientDiff
	}
	return t
}
