// Package palette extracts a small set of dominant colors from a decoded
// cover image and derives legible background colors from them.
//
// Colors are compared in CIE L*a*b* using plain Euclidean distance. This is
// the CIE76 delta-E, not CIEDE2000; the threshold below is tuned for it.
package palette

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
)

const (
	// SampleStride samples every Nth pixel in raster order.
	SampleStride = 10
	// MaxColors caps the extracted palette.
	MaxColors = 6
	// MinDeltaE is the smallest Lab distance between two accepted colors.
	MinDeltaE = 20.0
)

// RGB is an 8-bit sRGB color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// NRGBA returns c as an opaque color.NRGBA.
func (c RGB) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// Hex returns c as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Lab is a CIE L*a*b* color.
type Lab struct {
	L, A, B float64
}

// D65 reference white.
const (
	refX = 95.047
	refY = 100.0
	refZ = 108.883
)

// ToLab converts c to Lab through XYZ. Channel values go through the sRGB
// matrix as-is, without gamma expansion.
func ToLab(c RGB) Lab {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	x := (r*0.4124 + g*0.3576 + b*0.1805) / 255 * 100
	y := (r*0.2126 + g*0.7152 + b*0.0722) / 255 * 100
	z := (r*0.0193 + g*0.1192 + b*0.9505) / 255 * 100

	fx, fy, fz := labF(x/refX), labF(y/refY), labF(z/refZ)
	return Lab{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

func labF(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116.0
}

// DeltaE is the Euclidean distance between a and b.
func DeltaE(a, b Lab) float64 {
	dl, da, db := a.L-b.L, a.A-b.A, a.B-b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

// Extract returns up to MaxColors mutually distinct colors from img, ordered
// lightest first. The sample set is fixed by SampleStride, so the result is
// deterministic for a given decode. An empty image yields an empty slice.
func Extract(img image.Image) []RGB {
	if img == nil {
		return []RGB{}
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	total := w * h

	colors := make([]RGB, 0, MaxColors)
	labs := make([]Lab, 0, MaxColors)

	for i := 0; i < total; i += SampleStride {
		// Once the palette is full no later sample can change it.
		if len(colors) == MaxColors {
			break
		}
		px := color.NRGBAModel.Convert(img.At(bounds.Min.X+i%w, bounds.Min.Y+i/w)).(color.NRGBA)
		c := RGB{R: px.R, G: px.G, B: px.B}
		lab := ToLab(c)

		distinct := true
		for _, seen := range labs {
			if DeltaE(lab, seen) < MinDeltaE {
				distinct = false
				break
			}
		}
		if distinct {
			colors = append(colors, c)
			labs = append(labs, lab)
		}
	}

	sort.SliceStable(colors, func(i, j int) bool {
		return ToLab(colors[i]).L > ToLab(colors[j]).L
	})
	return colors
}

// Luma returns the BT.601 perceived brightness of c on a 0-255 scale.
func Luma(c RGB) float64 {
	return (float64(c.R)*299 + float64(c.G)*587 + float64(c.B)*114) / 1000
}

// EnsureDarkColor scales c down so that its luma is at most 128.
// Colors already at or below that are returned unchanged.
func EnsureDarkColor(c RGB) RGB {
	brightness := Luma(c)
	if brightness <= 128 {
		return c
	}
	return Scale(c, 128/brightness)
}

// Scale multiplies every channel by factor, clamped to [0,255].
func Scale(c RGB, factor float64) RGB {
	return RGB{
		R: clampChannel(float64(c.R) * factor),
		G: clampChannel(float64(c.G) * factor),
		B: clampChannel(float64(c.B) * factor),
	}
}

// DarkShade returns c at 10% of its brightness, used as the far stop of
// palette-derived gradients.
func DarkShade(c RGB) RGB {
	return Scale(c, 0.1)
}

func clampChannel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
