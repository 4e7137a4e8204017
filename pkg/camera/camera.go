// Package camera provides frame sources for the kiosk: a live OpenCV
// capture device and a replay of recorded frames from a directory.
package camera

import (
	"errors"
	"image"
	"time"
)

// Frame represents a single camera frame.
type Frame struct {
	Image     image.Image
	Seq       uint64
	Timestamp time.Time
}

// Source produces frames one at a time.
type Source interface {
	Read() (Frame, error)
	Close() error
}

// Settings describes how to open a capture device.
type Settings struct {
	Device string
	Width  int
	Height int
	FPS    int
	Mirror bool
}

// ErrCameraNotFound is returned when the camera device cannot be opened.
var ErrCameraNotFound = errors.New("camera device not found")

// ErrCameraNotOpen is returned when trying to capture from a closed camera.
var ErrCameraNotOpen = errors.New("camera not open")

// ErrNoFrame is returned when no frame could be captured.
var ErrNoFrame = errors.New("failed to capture frame")

// ErrEndOfStream is returned by finite sources once every frame was read.
var ErrEndOfStream = errors.New("end of frame stream")
