package kiosk

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/MrCodeEU/lpad/pkg/liveness"
)

// Palette used by the render descriptors.
var (
	White  = color.RGBA{255, 255, 255, 255}
	Gray   = color.RGBA{200, 200, 200, 255}
	Black  = color.RGBA{0, 0, 0, 255}
	Red    = color.RGBA{255, 0, 0, 255}
	Green  = color.RGBA{0, 255, 0, 255}
	Yellow = color.RGBA{255, 255, 0, 255}
	Cyan   = color.RGBA{0, 255, 255, 255}
)

// Flash overlays. The overlay is the stimulus of the liveness check, so its
// strength is part of the protocol.
var (
	DarkOverlay     = Overlay{Color: Black, Alpha: 0.98}
	BrightOverlay   = Overlay{Color: White, Alpha: 0.85}
	TrainingOverlay = Overlay{Color: Black, Alpha: 1.0}
)

// Overlay is a uniform color blended over the whole frame.
type Overlay struct {
	Color color.RGBA
	Alpha float64
}

// Active reports whether the overlay changes the frame.
func (o Overlay) Active() bool {
	return o.Alpha > 0
}

// OverlayFor returns the flash overlay of a phase.
func OverlayFor(p liveness.Phase) Overlay {
	switch p {
	case liveness.PhaseDark:
		return DarkOverlay
	case liveness.PhaseBright:
		return BrightOverlay
	}
	return Overlay{}
}

// Render is what the display shows for one frame. The orchestrator never
// draws; a render sink turns this into pixels.
type Render struct {
	Headline     string          `json:"headline"`
	Subline      string          `json:"subline,omitempty"`
	Color        color.RGBA      `json:"-"`
	Overlay      Overlay         `json:"-"`
	Box          image.Rectangle `json:"-"`
	BoxColor     color.RGBA      `json:"-"`
	BoxThickness int             `json:"-"`

	// TrainingPending is set once the enrollment quota is reached. The
	// frame loop must call FinishEnrollment outside of Process.
	TrainingPending bool `json:"training_pending,omitempty"`
}

// HasBox reports whether a face box should be drawn.
func (r Render) HasBox() bool {
	return r.BoxThickness > 0 && !r.Box.Empty()
}

// Composite blends o over dst: result = alpha*overlay + (1-alpha)*frame.
func Composite(dst draw.Image, o Overlay) {
	if dst == nil || !o.Active() {
		return
	}
	alpha := o.Alpha
	if alpha > 1 {
		alpha = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(alpha*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(o.Color), image.Point{}, mask, image.Point{}, draw.Over)
}
