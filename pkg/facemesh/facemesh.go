// Package facemesh defines the contract between a face landmark detector
// and the rest of the kiosk: a single detected face, its padded bounding box
// and its landmark points.
package facemesh

import (
	"image"
)

// BoxPadding is the margin added around the landmark extent.
const BoxPadding = 20

// Detection is the result of running a detector over one frame.
// At most one face is reported.
type Detection struct {
	Found     bool
	Box       image.Rectangle
	Landmarks []image.Point
}

// NotFound is the detection reported for frames without a face.
var NotFound = Detection{}

// Detector finds a face in a frame.
type Detector interface {
	Detect(frame image.Image) (Detection, error)
}

// Layout names the landmark indices used for light distribution sampling.
type Layout struct {
	Nose  int
	Left  int
	Right int
}

// MediaPipeLayout is the 468/478-point face mesh layout (nose tip and the two
// outer cheek points).
var MediaPipeLayout = Layout{Nose: 1, Left: 234, Right: 454}

// Dlib5Layout is the layout produced by the dlib 5-point detector in
// pkg/recognition: points 0-3 are eye corners, 4 is the nose and 5/6 are
// cheek points synthesized at nose height.
var Dlib5Layout = Layout{Nose: 4, Left: 5, Right: 6}

// Point returns landmark i, or false if it does not exist.
func Point(landmarks []image.Point, i int) (image.Point, bool) {
	if i < 0 || i >= len(landmarks) {
		return image.Point{}, false
	}
	return landmarks[i], true
}

// PaddedBox returns the extent of points grown by pad on every side and
// clamped to bounds. It returns the empty rectangle if points is empty or the
// result does not overlap bounds.
func PaddedBox(points []image.Point, pad int, bounds image.Rectangle) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	box := image.Rect(minX-pad, minY-pad, maxX+pad, maxY+pad)
	return box.Intersect(bounds)
}
