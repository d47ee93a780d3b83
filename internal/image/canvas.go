package imagepkg

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"github.com/youruser/musiccard/internal/variant"
)

type faceKey struct {
	size float64
	bold bool
}

// Canvas is the gg-backed Surface.
type Canvas struct {
	dc    *gg.Context
	fonts *Fonts
	faces map[faceKey]font.Face
}

// NewCanvas creates a transparent w x h canvas.
func NewCanvas(w, h int, fonts *Fonts) *Canvas {
	if fonts == nil {
		fonts = DefaultFonts()
	}
	return &Canvas{
		dc:    gg.NewContext(w, h),
		fonts: fonts,
		faces: map[faceKey]font.Face{},
	}
}

func (c *Canvas) Size() (int, int) {
	return c.dc.Width(), c.dc.Height()
}

func (c *Canvas) Clear() {
	c.dc.ResetClip()
	c.dc.SetColor(color.Transparent)
	c.dc.Clear()
}

func (c *Canvas) FillRect(x, y, w, h float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Fill()
}

func (c *Canvas) FillGradient(g LinearGradient, x, y, w, h float64) {
	grad := gg.NewLinearGradient(g.X0, g.Y0, g.X1, g.Y1)
	for _, s := range g.Stops {
		grad.AddColorStop(s.Offset, s.Color)
	}
	c.dc.SetFillStyle(grad)
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Fill()
}

// DrawImage scales img into the box. Only the part of the box that lands on
// the canvas is resampled, so the work is bounded by the canvas size.
func (c *Canvas) DrawImage(img image.Image, x, y, w, h float64) {
	tw, th := int(math.Round(w)), int(math.Round(h))
	if tw <= 0 || th <= 0 {
		return
	}
	dst := image.Rect(0, 0, tw, th).Add(image.Pt(int(math.Round(x)), int(math.Round(y))))
	vis := dst.Intersect(image.Rect(0, 0, c.dc.Width(), c.dc.Height()))
	if vis.Empty() {
		return
	}

	b := img.Bounds()
	if vis != dst {
		// Map the visible box back onto the source and crop before resizing.
		sx, sy := float64(b.Dx())/float64(tw), float64(b.Dy())/float64(th)
		src := image.Rect(
			b.Min.X+int(math.Floor(float64(vis.Min.X-dst.Min.X)*sx)),
			b.Min.Y+int(math.Floor(float64(vis.Min.Y-dst.Min.Y)*sy)),
			b.Min.X+int(math.Ceil(float64(vis.Max.X-dst.Min.X)*sx)),
			b.Min.Y+int(math.Ceil(float64(vis.Max.Y-dst.Min.Y)*sy)),
		).Intersect(b)
		if src.Empty() {
			return
		}
		img = imaging.Crop(img, src)
		b = img.Bounds()
		tw, th = vis.Dx(), vis.Dy()
	}
	if b.Dx() != tw || b.Dy() != th {
		img = imaging.Resize(img, tw, th, imaging.Lanczos)
	}
	c.dc.DrawImage(img, vis.Min.X, vis.Min.Y)
}

func (c *Canvas) ClipRoundedRect(x, y, w, h, r float64) {
	c.dc.DrawRoundedRectangle(x, y, w, h, r)
	c.dc.Clip()
}

func (c *Canvas) ResetClip() {
	c.dc.ResetClip()
}

func (c *Canvas) StrokeRoundedRect(x, y, w, h, r, lineWidth float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth)
	c.dc.DrawRoundedRectangle(x, y, w, h, r)
	c.dc.Stroke()
}

func (c *Canvas) face(size float64, bold bool) font.Face {
	k := faceKey{size: size, bold: bold}
	if f, ok := c.faces[k]; ok {
		return f
	}
	otf := c.fonts.Regular
	if bold {
		otf = c.fonts.Bold
	}
	f, err := opentype.NewFace(otf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// Only an invalid size fails; fall back to a 1px face.
		f, _ = opentype.NewFace(otf, &opentype.FaceOptions{Size: 1, DPI: 72})
	}
	c.faces[k] = f
	return f
}

func (c *Canvas) MeasureText(s string, size float64, bold bool) float64 {
	c.dc.SetFontFace(c.face(size, bold))
	w, _ := c.dc.MeasureString(s)
	return w
}

func (c *Canvas) DrawText(s string, x, y float64, style TextStyle) {
	face := c.face(style.Size, style.Bold)
	c.dc.SetFontFace(face)
	c.dc.SetColor(style.Color)

	if style.Align == AlignRight {
		w, _ := c.dc.MeasureString(s)
		x -= w
	}
	m := face.Metrics()
	switch style.Baseline {
	case variant.BaselineTop:
		y += float64(m.Ascent.Ceil())
	case variant.BaselineBottom:
		y -= float64(m.Descent.Ceil())
	}
	c.dc.DrawString(s, x, y)
}

func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

// Close releases the cached font faces.
func (c *Canvas) Close() error {
	for k, f := range c.faces {
		f.Close()
		delete(c.faces, k)
	}
	return nil
}
