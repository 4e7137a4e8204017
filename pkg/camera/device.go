package camera

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/lpad/pkg/logging"
)

// Device captures frames from a V4L2/OpenCV device.
type Device struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	flipped  gocv.Mat
	settings Settings
	seq      uint64
}

// deviceID turns "0" into a device index and leaves paths alone.
func deviceID(device string) interface{} {
	if idx, err := strconv.Atoi(device); err == nil {
		return idx
	}
	return device
}

// Open opens the capture device described by s.
func Open(s Settings) (*Device, error) {
	capture, err := gocv.OpenVideoCapture(deviceID(s.Device))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraNotFound, s.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, s.Device)
	}

	if s.Width > 0 && s.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.Height))
	}
	if s.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.FPS))
	}

	logging.Component("camera").WithFields(logging.Fields{
		"device": s.Device,
		"width":  capture.Get(gocv.VideoCaptureFrameWidth),
		"height": capture.Get(gocv.VideoCaptureFrameHeight),
		"fps":    capture.Get(gocv.VideoCaptureFPS),
	}).Info("Camera opened")

	return &Device{
		capture:  capture,
		mat:      gocv.NewMat(),
		flipped:  gocv.NewMat(),
		settings: s,
	}, nil
}

// Read captures the next frame, mirrored horizontally when configured.
func (d *Device) Read() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return Frame{}, ErrCameraNotOpen
	}
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return Frame{}, ErrNoFrame
	}

	src := d.mat
	if d.settings.Mirror {
		gocv.Flip(d.mat, &d.flipped, 1)
		src = d.flipped
	}

	img, err := src.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	d.seq++
	return Frame{Image: img, Seq: d.seq, Timestamp: time.Now()}, nil
}

// Close releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil
	}
	err := d.capture.Close()
	d.capture = nil
	d.mat.Close()
	d.flipped.Close()
	return err
}
