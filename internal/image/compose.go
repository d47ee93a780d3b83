// Package imagepkg renders music cards: it loads the artwork, paints the
// background, cover, overlay, text and palette in a fixed order onto a
// Surface and encodes the result.
package imagepkg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mazznoer/csscolorparser"
	"golang.org/x/sync/errgroup"

	"github.com/youruser/musiccard/internal/fetch"
	"github.com/youruser/musiccard/internal/music"
	"github.com/youruser/musiccard/internal/palette"
	"github.com/youruser/musiccard/internal/textlayout"
	"github.com/youruser/musiccard/internal/theme"
	"github.com/youruser/musiccard/internal/variant"
)

// Stage names one step of a render.
type Stage string

const (
	StageClear           Stage = "CLEAR"
	StageLoadAssets      Stage = "LOAD_ASSETS"
	StagePaintBackground Stage = "PAINT_BACKGROUND"
	StagePaintCover      Stage = "PAINT_COVER"
	StagePaintOverlay    Stage = "PAINT_OVERLAY_TEMPLATE"
	StagePaintText       Stage = "PAINT_TEXT_ELEMENTS"
	StagePaintPalette    Stage = "PAINT_PALETTE"
	StageEncode          Stage = "ENCODE"
)

// RenderError reports the stage at which a render was aborted.
type RenderError struct {
	Stage Stage
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ImageSource loads decoded images by ref.
type ImageSource interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Request is everything one render needs. It is not modified.
type Request struct {
	Info        music.CardInfo
	Theme       theme.Theme
	Profile     variant.Profile
	Background  *variant.BackgroundConfig
	UseGradient bool
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	Images ImageSource
	Fonts  *Fonts
	// NewSurface creates the canvas of each render. Defaults to a Canvas.
	NewSurface func(w, h int) Surface
	// PlayRatio derives the play position when CardInfo has none.
	PlayRatio float64
	// ColorTTL bounds how long a cover's palette is reused. Zero keeps it.
	ColorTTL time.Duration
	Logger   *slog.Logger
}

// Renderer composes cards. It is safe for concurrent use; every render
// owns its Surface.
type Renderer struct {
	images     ImageSource
	newSurface func(w, h int) Surface
	playRatio  float64
	colors     *fetch.Cache[string, []palette.RGB]
	log        *slog.Logger
}

// NewRenderer returns a Renderer.
func NewRenderer(opts RendererOptions) *Renderer {
	r := &Renderer{
		images:     opts.Images,
		newSurface: opts.NewSurface,
		playRatio:  opts.PlayRatio,
		colors:     fetch.NewCache[string, []palette.RGB](opts.ColorTTL),
		log:        opts.Logger,
	}
	if r.newSurface == nil {
		fonts := opts.Fonts
		if fonts == nil {
			fonts = DefaultFonts()
		}
		r.newSurface = func(w, h int) Surface { return NewCanvas(w, h, fonts) }
	}
	if r.playRatio <= 0 || r.playRatio > 1 {
		r.playRatio = 1.0 / 3
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Colors exposes the palette cache.
func (r *Renderer) Colors() *fetch.Cache[string, []palette.RGB] {
	return r.colors
}

// assets are the decoded images of one render.
type assets struct {
	themeBG  image.Image
	customBG image.Image
	cover    image.Image
	overlay  image.Image
	colors   []palette.RGB
}

// Render draws req onto a fresh surface. On error the surface is discarded.
func (r *Renderer) Render(ctx context.Context, req Request) (image.Image, error) {
	p := req.Profile
	if p.Width <= 0 || p.Height <= 0 {
		return nil, &RenderError{Stage: StageClear, Err: fmt.Errorf("invalid canvas %dx%d", p.Width, p.Height)}
	}

	s := r.newSurface(p.Width, p.Height)
	if c, ok := s.(interface{ Close() error }); ok {
		defer c.Close()
	}
	s.Clear()

	a, err := r.loadAssets(ctx, req)
	if err != nil {
		return nil, &RenderError{Stage: StageLoadAssets, Err: err}
	}

	steps := []struct {
		stage Stage
		paint func(Surface, Request, *assets) error
	}{
		{StagePaintBackground, r.paintBackground},
		{StagePaintCover, r.paintCover},
		{StagePaintOverlay, r.paintOverlay},
		{StagePaintText, r.paintText},
		{StagePaintPalette, r.paintPalette},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &RenderError{Stage: step.stage, Err: err}
		}
		if err := step.paint(s, req, a); err != nil {
			return nil, &RenderError{Stage: step.stage, Err: err}
		}
	}
	return s.Image(), nil
}

// RenderPNG renders req and encodes it as PNG.
func (r *Renderer) RenderPNG(ctx context.Context, req Request) ([]byte, error) {
	img, err := r.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return nil, &RenderError{Stage: StageEncode, Err: err}
	}
	return buf.Bytes(), nil
}

func coverShown(req Request) bool {
	return req.Profile.Elements[variant.Cover].Visible && req.Info.CoverURL != ""
}

// loadAssets issues every image load at once and waits for all of them.
// Any failure fails the whole step.
func (r *Renderer) loadAssets(ctx context.Context, req Request) (*assets, error) {
	if r.images == nil {
		return nil, fmt.Errorf("no image source configured")
	}
	a := &assets{}
	rules := req.Profile.Rules

	g, gctx := errgroup.WithContext(ctx)
	load := func(ref string, dst *image.Image) {
		g.Go(func() error {
			img, err := r.images.Load(gctx, ref)
			if err != nil {
				return err
			}
			*dst = img
			return nil
		})
	}

	if !rules.CustomBackground && req.Theme.BackgroundKind == theme.BackgroundImage {
		load(req.Theme.Background, &a.themeBG)
	}
	if rules.CustomBackground && req.Background != nil && req.Background.ImageRef != "" {
		load(req.Background.ImageRef, &a.customBG)
	}
	if coverShown(req) {
		load(req.Info.CoverURL, &a.cover)
	}
	if rules.Overlay != "" {
		load(rules.Overlay, &a.overlay)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if a.cover != nil {
		a.colors = r.palette(req.Info.CoverURL, a.cover)
	}
	return a, nil
}

// palette extracts colors for the cover at key. Inline data URIs are not
// cached: the key would be the whole payload.
func (r *Renderer) palette(key string, img image.Image) []palette.RGB {
	if strings.HasPrefix(key, "data:") {
		return palette.Extract(img)
	}
	if colors, ok := r.colors.Get(key); ok {
		return colors
	}
	colors := palette.Extract(img)
	r.colors.Set(key, colors)
	return colors
}

func (r *Renderer) paintBackground(s Surface, req Request, a *assets) error {
	w, h := s.Size()
	fw, fh := float64(w), float64(h)

	if req.Profile.Rules.CustomBackground {
		if a.customBG != nil {
			return r.paintCustomBackground(s, req, a.customBG)
		}
		return paintFallbackBackground(s, a.colors, req.UseGradient)
	}

	switch req.Theme.BackgroundKind {
	case theme.BackgroundImage:
		if a.themeBG == nil {
			return fmt.Errorf("theme %s background not loaded", req.Theme.ID)
		}
		s.DrawImage(imaging.Fill(a.themeBG, w, h, imaging.Center, imaging.Lanczos), 0, 0, fw, fh)
	default:
		c, err := parseColor(req.Theme.Background)
		if err != nil {
			return fmt.Errorf("theme %s background: %w", req.Theme.ID, err)
		}
		s.FillRect(0, 0, fw, fh, c)
	}
	return nil
}

// paintCustomBackground scales the image to cover the canvas off-screen,
// blurs it, composites it at the configured opacity and only then overlays
// the gradient, when enabled.
func (r *Renderer) paintCustomBackground(s Surface, req Request, img image.Image) error {
	w, h := s.Size()
	bg := req.Background

	buf := imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	if bg.BlurRadius > 0 {
		buf = imaging.Blur(buf, bg.BlurRadius)
	}
	if bg.Opacity < 1 {
		buf = imaging.Overlay(imaging.New(w, h, color.Transparent), buf, image.Pt(0, 0), bg.Opacity)
	}
	s.DrawImage(buf, 0, 0, float64(w), float64(h))

	if !req.UseGradient || bg.Gradient == nil {
		return nil
	}
	g, err := angledGradient(bg.Gradient, float64(w), float64(h))
	if err != nil {
		return err
	}
	s.FillGradient(g, 0, 0, float64(w), float64(h))
	return nil
}

// fallbackBackground is used when there is neither a custom image nor a
// palette.
var fallbackBackground = palette.RGB{R: 20, G: 20, B: 20}

func paintFallbackBackground(s Surface, colors []palette.RGB, useGradient bool) error {
	w, h := s.Size()
	fw, fh := float64(w), float64(h)

	if len(colors) == 0 {
		s.FillRect(0, 0, fw, fh, fallbackBackground.NRGBA())
		return nil
	}
	main := palette.EnsureDarkColor(colors[0])
	if !useGradient {
		s.FillRect(0, 0, fw, fh, main.NRGBA())
		return nil
	}
	s.FillGradient(LinearGradient{
		X0: 0, Y0: 0, X1: 0, Y1: fh,
		Stops: []GradientStop{
			{Offset: 0, Color: palette.DarkShade(main).NRGBA()},
			{Offset: 1, Color: main.NRGBA()},
		},
	}, 0, 0, fw, fh)
	return nil
}

// angledGradient turns an angle into a unit vector and lays the gradient
// line through the canvas center, scaled by the canvas size.
func angledGradient(g *variant.Gradient, w, h float64) (LinearGradient, error) {
	rad := g.AngleDegrees * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	out := LinearGradient{
		X0: w/2 - dx*w, Y0: h/2 - dy*h,
		X1: w/2 + dx*w, Y1: h/2 + dy*h,
	}
	for i, c := range g.Colors {
		if i >= len(g.Stops) {
			break
		}
		col, err := parseColor(c)
		if err != nil {
			return LinearGradient{}, fmt.Errorf("gradient color %d: %w", i, err)
		}
		out.Stops = append(out.Stops, GradientStop{Offset: g.Stops[i], Color: col})
	}
	return out, nil
}

func (r *Renderer) paintCover(s Surface, req Request, a *assets) error {
	if !coverShown(req) || a.cover == nil {
		return nil
	}
	w, h := s.Size()
	el := req.Profile.Elements[variant.Cover]
	x, y, size := el.X*float64(w), el.Y*float64(h), el.Size
	radius := req.Profile.CoverRadius(size)

	s.ClipRoundedRect(x, y, size, size, radius)
	s.DrawImage(a.cover, x, y, size, size)
	s.ResetClip()

	if req.Profile.Rules.CoverBorder {
		s.StrokeRoundedRect(x, y, size, size, radius, 2, color.NRGBA{A: 51})
	}
	return nil
}

func (r *Renderer) paintOverlay(s Surface, req Request, a *assets) error {
	if a.overlay == nil {
		return nil
	}
	w, h := s.Size()
	s.DrawImage(a.overlay, 0, 0, float64(w), float64(h))
	return nil
}

func (r *Renderer) paintText(s Surface, req Request, a *assets) error {
	p := req.Profile
	w, h := s.Size()
	fw, fh := float64(w), float64(h)
	info := req.Info

	draw := func(el variant.Element, text string, themeColor string) error {
		cfg := p.Elements[el]
		if !cfg.Visible || text == "" {
			return nil
		}
		rule := p.Rules.Text[el]
		col, err := ruleColor(rule, themeColor)
		if err != nil {
			return fmt.Errorf("%s color: %w", el, err)
		}
		x, y := cfg.X*fw, cfg.Y*fh
		if rule.MaxRunes > 0 {
			text = textlayout.TruncateRunes(text, rule.MaxRunes)
		} else {
			text = textlayout.TruncateWidth(measurer(s, cfg.Size, rule.Bold), text, p.TextBudget(x))
		}
		s.DrawText(text, x, y, TextStyle{Size: cfg.Size, Bold: rule.Bold, Baseline: rule.Baseline, Color: col})
		return nil
	}

	title := info.Title
	if p.Rules.CombinedTitle && (info.Title != "" || info.Artist != "") {
		title = info.Artist + "/" + info.Title
	}
	if err := draw(variant.Title, title, req.Theme.PrimaryText); err != nil {
		return err
	}
	if !p.Rules.CombinedTitle {
		if err := draw(variant.Artist, info.Artist, req.Theme.Secondary()); err != nil {
			return err
		}
	}

	if p.Rules.SingleLineLyrics {
		if err := draw(variant.Lyrics, firstLine(info.Lyrics), req.Theme.PrimaryText); err != nil {
			return err
		}
	} else if err := r.paintLyrics(s, req); err != nil {
		return err
	}

	return r.paintDuration(s, req)
}

func (r *Renderer) paintLyrics(s Surface, req Request) error {
	p := req.Profile
	cfg := p.Elements[variant.Lyrics]
	if !cfg.Visible || req.Info.Lyrics == "" {
		return nil
	}
	w, h := s.Size()
	rule := p.Rules.Text[variant.Lyrics]
	col, err := ruleColor(rule, req.Theme.PrimaryText)
	if err != nil {
		return fmt.Errorf("lyrics color: %w", err)
	}

	x, y := cfg.X*float64(w), cfg.Y*float64(h)
	lineHeight := cfg.Size * p.Rules.LyricLineHeight
	lines := textlayout.Paragraphs(measurer(s, cfg.Size, rule.Bold), req.Info.Lyrics, p.TextBudget(x), p.Rules.SkipBlankLyrics)
	style := TextStyle{Size: cfg.Size, Bold: rule.Bold, Baseline: rule.Baseline, Color: col}
	for _, l := range lines {
		s.DrawText(l.Text, x, y+float64(l.Row)*lineHeight, style)
	}
	return nil
}

// paintDuration right-aligns the track length at the element position and,
// for layouts with a progress bar, left-aligns the play position on the
// same line.
func (r *Renderer) paintDuration(s Surface, req Request) error {
	p := req.Profile
	cfg := p.Elements[variant.Duration]
	if !cfg.Visible || req.Info.Duration <= 0 {
		return nil
	}
	w, h := s.Size()
	rule := p.Rules.Text[variant.Duration]
	col, err := ruleColor(rule, req.Theme.Secondary())
	if err != nil {
		return fmt.Errorf("duration color: %w", err)
	}

	style := TextStyle{Size: cfg.Size, Bold: rule.Bold, Baseline: rule.Baseline, Align: AlignRight, Color: col}
	y := cfg.Y * float64(h)
	s.DrawText(music.FormatDuration(req.Info.Duration), cfg.X*float64(w), y, style)

	if p.Rules.ShowPlayDuration {
		style.Align = AlignLeft
		s.DrawText(music.FormatDuration(req.Info.PlayPosition(r.playRatio)), p.Rules.PlayDurationX*float64(w), y, style)
	}
	return nil
}

func (r *Renderer) paintPalette(s Surface, req Request, a *assets) error {
	if !req.Profile.Rules.Palette || !coverShown(req) {
		return nil
	}
	sw := req.Profile.SwatchWidth()
	for i, c := range a.colors {
		if i == variant.PaletteSlots {
			break
		}
		s.FillRect(variant.PaletteStartX+sw*float64(i), variant.PaletteY, sw, variant.PaletteHeight, c.NRGBA())
	}
	return nil
}

func measurer(s Surface, size float64, bold bool) textlayout.MeasureFunc {
	return func(text string) float64 {
		return s.MeasureText(text, size, bold)
	}
}

func ruleColor(rule variant.TextRule, fallback string) (color.Color, error) {
	if rule.Color != "" {
		return parseColor(rule.Color)
	}
	return parseColor(fallback)
}

func parseColor(s string) (color.Color, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return nil, err
	}
	return color.NRGBA{R: unit8(c.R), G: unit8(c.G), B: unit8(c.B), A: unit8(c.A)}, nil
}

func unit8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// firstLine returns the first non-blank line of text.
func firstLine(text string) string {
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}
