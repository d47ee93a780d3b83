// Package variant describes the card layouts. A Profile is pure data: canvas
// size, default element placement and the drawing rules the compositor
// applies for that layout.
package variant

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mazznoer/csscolorparser"
)

// Name identifies a layout profile.
type Name string

const (
	Poster  Name = "poster"
	Spotify Name = "spotify"
	Phone   Name = "phone"
)

// Element names a drawable unit on the card.
type Element string

const (
	Cover    Element = "cover"
	Title    Element = "title"
	Artist   Element = "artist"
	Lyrics   Element = "lyrics"
	Duration Element = "duration"
)

// AllElements lists every element in paint order of the text pass.
var AllElements = []Element{Cover, Title, Artist, Lyrics, Duration}

var ErrInvalidConfig = errors.New("invalid card config")

// ElementConfig places one element. X and Y are canvas fractions; Size is a
// pixel edge length for the cover and a font size for text.
type ElementConfig struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Size    float64 `json:"size"`
	Visible bool    `json:"visible"`
}

// Elements maps each element to its placement.
type Elements map[Element]ElementConfig

// Clone returns a copy that can be modified freely.
func (e Elements) Clone() Elements {
	out := make(Elements, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merge returns a copy of e with every element in overrides replaced.
func (e Elements) Merge(overrides Elements) Elements {
	out := e.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// MaxElementSize bounds any element size regardless of variant. Profiles
// apply a tighter, canvas-relative bound in Resolve.
const MaxElementSize = 4096

// Validate checks that every element is known and inside the canvas.
func (e Elements) Validate() error {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, string(k))
	}
	sort.Strings(names)

	for _, name := range names {
		el := Element(name)
		if !knownElement(el) {
			return fmt.Errorf("%w: unknown element %q", ErrInvalidConfig, name)
		}
		c := e[el]
		if !inUnit(c.X) || !inUnit(c.Y) {
			return fmt.Errorf("%w: %s position (%g, %g) outside [0,1]", ErrInvalidConfig, name, c.X, c.Y)
		}
		if c.Size < 0 || c.Size > MaxElementSize || math.IsNaN(c.Size) || math.IsInf(c.Size, 0) {
			return fmt.Errorf("%w: %s size %g", ErrInvalidConfig, name, c.Size)
		}
	}
	return nil
}

func knownElement(el Element) bool {
	for _, k := range AllElements {
		if k == el {
			return true
		}
	}
	return false
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Gradient is a linear gradient whose line runs through the canvas center
// at AngleDegrees in canvas coordinates: 0 points right, 90 points down.
type Gradient struct {
	AngleDegrees float64   `json:"angle"`
	Colors       []string  `json:"colors"`
	Stops        []float64 `json:"stops"`
}

// Validate checks ranges and that every color parses.
func (g *Gradient) Validate() error {
	if g.AngleDegrees < 0 || g.AngleDegrees > 360 {
		return fmt.Errorf("%w: gradient angle %g outside [0,360]", ErrInvalidConfig, g.AngleDegrees)
	}
	if len(g.Colors) != len(g.Stops) {
		return fmt.Errorf("%w: %d gradient colors but %d stops", ErrInvalidConfig, len(g.Colors), len(g.Stops))
	}
	if len(g.Colors) < 2 {
		return fmt.Errorf("%w: gradient needs at least two colors", ErrInvalidConfig)
	}
	for i, s := range g.Stops {
		if !inUnit(s) {
			return fmt.Errorf("%w: gradient stop %g outside [0,1]", ErrInvalidConfig, s)
		}
		if i > 0 && s < g.Stops[i-1] {
			return fmt.Errorf("%w: gradient stops are not ordered", ErrInvalidConfig)
		}
	}
	for _, c := range g.Colors {
		if _, err := csscolorparser.Parse(c); err != nil {
			return fmt.Errorf("%w: gradient color %q: %v", ErrInvalidConfig, c, err)
		}
	}
	return nil
}

// BackgroundConfig is the custom backdrop of layouts that accept one.
type BackgroundConfig struct {
	ImageRef   string    `json:"image,omitempty"`
	BlurRadius float64   `json:"blur"`
	Opacity    float64   `json:"opacity"`
	Gradient   *Gradient `json:"gradient,omitempty"`
}

// DefaultBackground returns no image, no blur, full opacity and a top-down
// dimming gradient. Decode request JSON over it to keep omitted defaults.
func DefaultBackground() BackgroundConfig {
	return BackgroundConfig{
		Opacity: 1,
		Gradient: &Gradient{
			AngleDegrees: 180,
			Colors:       []string{"rgba(0, 0, 0, 0.7)", "rgba(0, 0, 0, 0.3)"},
			Stops:        []float64{0, 1},
		},
	}
}

// MaxBlurRadius bounds BlurRadius.
const MaxBlurRadius = 20

func (b BackgroundConfig) Validate() error {
	if b.BlurRadius < 0 || b.BlurRadius > MaxBlurRadius {
		return fmt.Errorf("%w: blur %g outside [0,%d]", ErrInvalidConfig, b.BlurRadius, MaxBlurRadius)
	}
	if !inUnit(b.Opacity) {
		return fmt.Errorf("%w: opacity %g outside [0,1]", ErrInvalidConfig, b.Opacity)
	}
	if b.Gradient != nil {
		return b.Gradient.Validate()
	}
	return nil
}
