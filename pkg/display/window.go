package display

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/MrCodeEU/lpad/pkg/access"
	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

// Text placement
var (
	headlineOrigin = image.Pt(20, 50)
	sublineOrigin  = image.Pt(20, 95)
)

// Window shows frames in a full-screen OpenCV window. The flash overlays
// need the screen to face the user.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a window titled title.
func NewWindow(title string, fullscreen bool) *Window {
	win := gocv.NewWindow(title)
	if fullscreen {
		win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
	}
	return &Window{win: win}
}

// Show implements access.Display.
func (w *Window) Show(frame camera.Frame, r kiosk.Render) access.Action {
	canvas := Frame(frame.Image, r)

	mat, err := gocv.ImageToMatRGB(canvas)
	if err != nil {
		logging.Component("display").WithError(err).Debug("Failed to convert frame")
		return ActionForKey(w.win.WaitKey(1))
	}
	defer mat.Close()

	if r.HasBox() {
		gocv.Rectangle(&mat, r.Box, r.BoxColor, r.BoxThickness)
	}
	gocv.PutText(&mat, r.Headline, headlineOrigin, gocv.FontHersheySimplex, 1.2, r.Color, 3)
	if r.Subline != "" {
		gocv.PutText(&mat, r.Subline, sublineOrigin, gocv.FontHersheySimplex, 0.8, r.Color, 2)
	}

	w.win.IMShow(mat)
	return ActionForKey(w.win.WaitKey(1))
}

// Close closes the window.
func (w *Window) Close() error {
	return w.win.Close()
}
