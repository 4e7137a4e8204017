// Package illumination measures how light falls on a detected face: the
// fraction of specular (glare) pixels, the mean perceptual lightness of the
// face center and the brightness at the nose compared with the cheeks.
//
// The measurement functions work on 8-bit BGR gocv Mats. Every function is
// total. Geometry is clamped to the frame before a region is taken and an
// empty region yields false or 0.0, which the liveness check treats as
// evidence against a live face.
package illumination

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/lpad/pkg/facemesh"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

// windowHalf is half the side of the square sampled around a landmark.
const windowHalf = 10

// GlareParams configures specular highlight detection.
type GlareParams struct {
	// Threshold is the luminance (0-255) above which a pixel is specular.
	Threshold float64
	// Ratio is the fraction of specular pixels above which the region has glare.
	Ratio float64
}

// Measurements holds the per-frame illumination readings for one face.
type Measurements struct {
	Glare       bool
	Brightness  float64
	LightCenter float64
	LightEdge   float64
}

// Analyzer bundles the parameters needed to measure a detection.
type Analyzer struct {
	Glare  GlareParams
	Layout facemesh.Layout
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(glare GlareParams, layout facemesh.Layout) *Analyzer {
	return &Analyzer{Glare: glare, Layout: layout}
}

// Measure runs all three measurements on a detection. The frame is converted
// to a BGR Mat once; frames without a face or that cannot be converted
// produce zero Measurements.
func (a *Analyzer) Measure(frame image.Image, det facemesh.Detection) Measurements {
	if frame == nil || !det.Found {
		return Measurements{}
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		logging.Component("illumination").WithError(err).Debug("Failed to convert frame")
		return Measurements{}
	}
	defer mat.Close()

	// Mat coordinates start at zero whatever the image bounds are.
	origin := frame.Bounds().Min
	landmarks := make([]image.Point, len(det.Landmarks))
	for i, p := range det.Landmarks {
		landmarks[i] = p.Sub(origin)
	}

	center, edge := LightDistribution(mat, landmarks, a.Layout)
	return Measurements{
		Glare:       SpecularGlare(mat, det.Box.Sub(origin), a.Glare),
		Brightness:  FaceBrightness(mat, det.Box.Sub(origin)),
		LightCenter: center,
		LightEdge:   edge,
	}
}

// SpecularGlare reports whether the share of pixels in box whose gray value
// is above p.Threshold exceeds p.Ratio. An empty region never has glare.
func SpecularGlare(frame gocv.Mat, box image.Rectangle, p GlareParams) bool {
	gray, ok := grayRegion(frame, box)
	if !ok {
		return false
	}
	defer gray.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, float32(p.Threshold), 255, gocv.ThresholdBinary)

	total := gray.Rows() * gray.Cols()
	return float64(gocv.CountNonZero(mask))/float64(total) > p.Ratio
}

// FaceBrightness returns the mean L channel of the 8-bit Lab conversion
// (CIE L* scaled to 0-255) of the central half-width, half-height window
// of box.
func FaceBrightness(frame gocv.Mat, box image.Rectangle) float64 {
	cx := (box.Min.X + box.Max.X) / 2
	cy := (box.Min.Y + box.Max.Y) / 2
	wq := box.Dx() / 4
	hq := box.Dy() / 4

	// A literal keeps inverted input inverted, so it clips to empty.
	center := image.Rectangle{
		Min: image.Pt(cx-wq, cy-hq),
		Max: image.Pt(cx+wq, cy+hq),
	}
	region, ok := crop(frame, center)
	if !ok {
		return 0.0
	}
	defer region.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(region, &lab, gocv.ColorBGRToLab)

	return lab.Mean().Val1
}

// LightDistribution samples a 20x20 gray window around the nose landmark
// (center) and around the two cheek landmarks (edge, averaged over the
// windows that could be sampled).
func LightDistribution(frame gocv.Mat, landmarks []image.Point, layout facemesh.Layout) (center, edge float64) {
	if len(landmarks) == 0 {
		return 0.0, 0.0
	}

	if p, ok := facemesh.Point(landmarks, layout.Nose); ok {
		center, _ = windowMean(frame, p)
	}

	var sum float64
	n := 0
	for _, idx := range []int{layout.Left, layout.Right} {
		p, ok := facemesh.Point(landmarks, idx)
		if !ok {
			continue
		}
		if m, ok := windowMean(frame, p); ok {
			sum += m
			n++
		}
	}
	if n > 0 {
		edge = sum / float64(n)
	}
	return center, edge
}

// windowMean is the mean gray value of the window centered on p.
func windowMean(frame gocv.Mat, p image.Point) (float64, bool) {
	window := image.Rectangle{
		Min: p.Sub(image.Pt(windowHalf, windowHalf)),
		Max: p.Add(image.Pt(windowHalf, windowHalf)),
	}
	gray, ok := grayRegion(frame, window)
	if !ok {
		return 0.0, false
	}
	defer gray.Close()

	return gray.Mean().Val1, true
}

// grayRegion is the clamped region of frame converted to one gray channel.
func grayRegion(frame gocv.Mat, r image.Rectangle) (gocv.Mat, bool) {
	region, ok := crop(frame, r)
	if !ok {
		return gocv.Mat{}, false
	}
	defer region.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	return gray, true
}

// crop returns the part of r inside frame. The caller closes the result.
func crop(frame gocv.Mat, r image.Rectangle) (gocv.Mat, bool) {
	if frame.Empty() {
		return gocv.Mat{}, false
	}
	r = clip(r, image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if r.Empty() {
		return gocv.Mat{}, false
	}
	return frame.Region(r), true
}

// clip intersects r with bounds. Inverted rectangles clip to empty.
func clip(r, bounds image.Rectangle) image.Rectangle {
	return r.Intersect(bounds)
}
