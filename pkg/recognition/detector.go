package recognition

import (
	"errors"
	"image"

	"github.com/MrCodeEU/lpad/pkg/facemesh"
)

// dlib 5-point shape indices.
const (
	shapeNose    = 4
	dlib5Points  = 5
	cheekDivisor = 8
)

// Detector is a facemesh.Detector backed by the dlib 5-point pipeline.
// Landmarks follow facemesh.Dlib5Layout.
type Detector struct {
	rec *DlibRecognizer
}

// NewDetector creates a Detector that uses rec.
func NewDetector(rec *DlibRecognizer) *Detector {
	return &Detector{rec: rec}
}

// Detect finds the first face in frame. Frames without a face produce
// facemesh.NotFound and no error.
func (d *Detector) Detect(frame image.Image) (facemesh.Detection, error) {
	if frame == nil {
		return facemesh.NotFound, nil
	}
	data, err := EncodeJPEG(frame)
	if err != nil {
		return facemesh.NotFound, err
	}

	faces, err := d.rec.DetectFaces(data)
	if errors.Is(err, ErrNoFaceDetected) {
		return facemesh.NotFound, nil
	}
	if err != nil {
		return facemesh.NotFound, err
	}

	f := faces[0]
	landmarks := Landmarks(f)
	extent := append([]image.Point{f.Box.Min, f.Box.Max}, landmarks...)
	box := facemesh.PaddedBox(extent, facemesh.BoxPadding, frame.Bounds())

	return facemesh.Detection{
		Found:     !box.Empty(),
		Box:       box,
		Landmarks: landmarks,
	}, nil
}

// Landmarks returns the five dlib shape points followed by two cheek points
// at nose height, an eighth of the face width inside the face rectangle.
// Faces without a full 5-point shape have no landmarks.
func Landmarks(f Face) []image.Point {
	if len(f.Shapes) < dlib5Points {
		return nil
	}
	nose := f.Shapes[shapeNose]
	inset := f.Box.Dx() / cheekDivisor

	points := make([]image.Point, 0, dlib5Points+2)
	points = append(points, f.Shapes[:dlib5Points]...)
	points = append(points,
		image.Pt(f.Box.Min.X+inset, nose.Y),
		image.Pt(f.Box.Max.X-inset, nose.Y),
	)
	return points
}
