package variant

import (
	"fmt"
	"math"
)

// Baseline selects which edge of the text box sits on the element's y.
type Baseline int

const (
	BaselineTop Baseline = iota
	BaselineBottom
)

// TextRule is how one text element is drawn.
type TextRule struct {
	Baseline Baseline
	Bold     bool
	// MaxRunes cuts by codepoint count when positive. Otherwise the text is
	// cut to the width budget.
	MaxRunes int
	// Color overrides the theme color when set.
	Color string
}

// Rules are the drawing rules of a layout.
type Rules struct {
	// CoverRadius is a fixed corner radius. Zero means min(size*0.1, 60).
	CoverRadius float64
	// CoverBorder strokes a thin dark outline around the cover.
	CoverBorder bool
	// Overlay is an image ref drawn over the cover and background.
	Overlay string
	// CustomBackground enables BackgroundConfig and the palette-derived
	// fallback backdrop instead of the theme background.
	CustomBackground bool
	// Palette draws the swatch row.
	Palette bool

	// TextMargin is kept free on the right edge of width-cut text.
	TextMargin float64
	// TextWidthFraction, when set, replaces the width budget with a fixed
	// fraction of the canvas width.
	TextWidthFraction float64
	// CombinedTitle draws "artist/title" in the title slot.
	CombinedTitle bool

	LyricLineHeight  float64
	SkipBlankLyrics  bool
	SingleLineLyrics bool

	// ShowPlayDuration draws the play position left-aligned at PlayDurationX.
	ShowPlayDuration bool
	PlayDurationX    float64

	Text map[Element]TextRule
}

// Palette swatch row geometry.
const (
	PaletteStartX = 60
	PaletteY      = 1120
	PaletteHeight = 44
	PaletteSlots  = 6
)

// Profile is a complete layout.
type Profile struct {
	Name     Name     `json:"name"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Elements Elements `json:"elements"`
	Rules    Rules    `json:"-"`
}

// CoverRadius returns the corner radius for a cover of the given size.
func (p Profile) CoverRadius(size float64) float64 {
	if p.Rules.CoverRadius > 0 {
		return p.Rules.CoverRadius
	}
	return math.Min(size*0.1, 60)
}

// TextBudget returns the horizontal pixel budget of a text element drawn
// at x pixels.
func (p Profile) TextBudget(x float64) float64 {
	if p.Rules.TextWidthFraction > 0 {
		return float64(p.Width) * p.Rules.TextWidthFraction
	}
	return float64(p.Width) - x - p.Rules.TextMargin
}

// SwatchWidth is the width of one palette swatch.
func (p Profile) SwatchWidth() float64 {
	return float64(p.Width-2*PaletteStartX) / PaletteSlots
}

// MaxSize is the largest size an element may take on this canvas: the
// longer canvas edge for the cover, the canvas height for text.
func (p Profile) MaxSize(el Element) float64 {
	if el == Cover {
		return float64(max(p.Width, p.Height))
	}
	return float64(p.Height)
}

func cardElements() Elements {
	return Elements{
		Cover:    {X: 0.053, Y: 0.034, Size: 1020, Visible: true},
		Title:    {X: 0.053, Y: 0.73, Size: 64, Visible: true},
		Artist:   {X: 0.053, Y: 0.749, Size: 48, Visible: true},
		Lyrics:   {X: 0.053, Y: 0.801, Size: 40, Visible: true},
		Duration: {X: 0.947, Y: 0.73, Size: 36, Visible: true},
	}
}

func cardText(titleRunes, artistRunes int) map[Element]TextRule {
	return map[Element]TextRule{
		Title:    {Baseline: BaselineBottom, Bold: true, MaxRunes: titleRunes},
		Artist:   {Baseline: BaselineTop, MaxRunes: artistRunes},
		Lyrics:   {Baseline: BaselineTop},
		Duration: {Baseline: BaselineBottom},
	}
}

func profiles() map[Name]Profile {
	return map[Name]Profile{
		Poster: {
			Name: Poster, Width: 1140, Height: 1740,
			Elements: cardElements(),
			Rules: Rules{
				Palette:         true,
				TextMargin:      60,
				LyricLineHeight: 1.2,
				Text:            cardText(15, 20),
			},
		},
		Spotify: {
			Name: Spotify, Width: 1140, Height: 1740,
			Elements: cardElements(),
			Rules: Rules{
				CoverBorder:     true,
				Palette:         true,
				TextMargin:      60,
				LyricLineHeight: 1.5,
				SkipBlankLyrics: true,
				Text:            cardText(0, 0),
			},
		},
		Phone: {
			Name: Phone, Width: 1000, Height: 1500,
			Elements: Elements{
				Cover:    {X: 0.1, Y: 0.04, Size: 800, Visible: true},
				Title:    {X: 0.1, Y: 0.693, Size: 48, Visible: true},
				Artist:   {X: 0.1, Y: 0.693, Size: 48, Visible: true},
				Lyrics:   {X: 0.1, Y: 0.64, Size: 50, Visible: true},
				Duration: {X: 0.9, Y: 0.743, Size: 28, Visible: true},
			},
			Rules: Rules{
				CoverRadius:       40,
				Overlay:           "/templates/phone.png",
				CustomBackground:  true,
				TextWidthFraction: 0.8,
				CombinedTitle:     true,
				LyricLineHeight:   1.2,
				SingleLineLyrics:  true,
				ShowPlayDuration:  true,
				PlayDurationX:     0.1,
				Text: map[Element]TextRule{
					Title:    {Baseline: BaselineBottom, Color: "#ededed"},
					Lyrics:   {Baseline: BaselineBottom, Bold: true, Color: "#ffffff"},
					Duration: {Baseline: BaselineBottom, Color: "#ededed"},
				},
			},
		},
	}
}

var order = []Name{Poster, Spotify, Phone}

// Lookup returns a fresh copy of the named profile.
func Lookup(name Name) (Profile, error) {
	p, ok := profiles()[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, name)
	}
	return p, nil
}

// List returns every profile in a stable order.
func List() []Profile {
	all := profiles()
	out := make([]Profile, 0, len(order))
	for _, n := range order {
		out = append(out, all[n])
	}
	return out
}

// Resolve returns the named profile with element overrides applied and
// validated.
func Resolve(name Name, overrides Elements) (Profile, error) {
	p, err := Lookup(name)
	if err != nil {
		return Profile{}, err
	}
	if err := overrides.Validate(); err != nil {
		return Profile{}, err
	}
	for el, c := range overrides {
		if limit := p.MaxSize(el); c.Size > limit {
			return Profile{}, fmt.Errorf("%w: %s size %g exceeds %g for %s", ErrInvalidConfig, el, c.Size, limit, p.Name)
		}
	}
	p.Elements = p.Elements.Merge(overrides)
	return p, nil
}
