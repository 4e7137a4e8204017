// Package display renders kiosk frames: an OpenCV window for the real kiosk
// and a line printer for headless replays.
package display

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/draw"

	"github.com/MrCodeEU/lpad/pkg/access"
	"github.com/MrCodeEU/lpad/pkg/camera"
	"github.com/MrCodeEU/lpad/pkg/kiosk"
)

// Key codes
const (
	keyEscape = 27
	keyNone   = -1
)

// ActionForKey maps a key press to a kiosk action: s starts security mode,
// x stops, q or Esc quits.
func ActionForKey(key int) access.Action {
	if key == keyNone {
		return access.ActionNone
	}
	switch key & 0xFF {
	case 's', 'S':
		return access.ActionStartSecurity
	case 'x', 'X':
		return access.ActionStop
	case 'q', 'Q', keyEscape:
		return access.ActionQuit
	}
	return access.ActionNone
}

// Frame returns an RGBA copy of the camera frame with the overlay of r
// blended in. The copy leaves the camera buffer untouched.
func Frame(frame image.Image, r kiosk.Render) *image.RGBA {
	if frame == nil {
		return image.NewRGBA(image.Rectangle{})
	}
	b := frame.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, frame, b.Min, draw.Src)
	kiosk.Composite(canvas, r.Overlay)
	return canvas
}

// Printer is a headless display that writes a line whenever the headline or
// subline changes. It never asks for an action.
type Printer struct {
	w    io.Writer
	last kiosk.Render
	seen bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Show implements access.Display.
func (p *Printer) Show(frame camera.Frame, r kiosk.Render) access.Action {
	if p.seen && r.Headline == p.last.Headline && r.Subline == p.last.Subline {
		return access.ActionNone
	}
	p.seen = true
	p.last = r

	line := fmt.Sprintf("[%5d] %s", frame.Seq, r.Headline)
	if r.Subline != "" {
		line += " | " + r.Subline
	}
	if r.Overlay.Active() {
		line += fmt.Sprintf(" (overlay %.2f)", r.Overlay.Alpha)
	}
	_, _ = fmt.Fprintln(p.w, line)
	return access.ActionNone
}
