package imagepkg

import (
	"image"
	"image/color"

	"github.com/youruser/musiccard/internal/variant"
)

// Align is the horizontal anchor of drawn text.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// GradientStop is one color stop at Offset in [0,1].
type GradientStop struct {
	Offset float64
	Color  color.Color
}

// LinearGradient runs from (X0,Y0) to (X1,Y1).
type LinearGradient struct {
	X0, Y0, X1, Y1 float64
	Stops          []GradientStop
}

// TextStyle selects the font and placement of a DrawText call.
type TextStyle struct {
	Size     float64
	Bold     bool
	Baseline variant.Baseline
	Align    Align
	Color    color.Color
}

// Surface is the 2D drawing target of the compositor. Implementations are
// used from one goroutine at a time.
type Surface interface {
	Size() (w, h int)
	Clear()
	FillRect(x, y, w, h float64, c color.Color)
	FillGradient(g LinearGradient, x, y, w, h float64)
	// DrawImage scales img into the given box.
	DrawImage(img image.Image, x, y, w, h float64)
	// ClipRoundedRect restricts later draws to the rounded rectangle until
	// ResetClip.
	ClipRoundedRect(x, y, w, h, r float64)
	ResetClip()
	StrokeRoundedRect(x, y, w, h, r, lineWidth float64, c color.Color)
	// MeasureText returns the advance width of s in the given font.
	MeasureText(s string, size float64, bold bool) float64
	DrawText(s string, x, y float64, style TextStyle)
	Image() image.Image
}
