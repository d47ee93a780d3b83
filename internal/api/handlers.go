package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/youruser/musiccard/internal/fetch"
	imagepkg "github.com/youruser/musiccard/internal/image"
	"github.com/youruser/musiccard/internal/music"
	"github.com/youruser/musiccard/internal/proxy"
	"github.com/youruser/musiccard/internal/theme"
	"github.com/youruser/musiccard/internal/variant"
)

// MetadataService looks up track metadata.
type MetadataService interface {
	Fetch(ctx context.Context, platform music.Platform, id string) (music.CardInfo, error)
	Lookup(ctx context.Context, text string) (music.CardInfo, music.TrackRef, error)
}

// ImageFetcher downloads upstream images for the proxy endpoint.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*proxy.Response, error)
}

// CardRenderer renders a card to PNG.
type CardRenderer interface {
	RenderPNG(ctx context.Context, req imagepkg.Request) ([]byte, error)
}

// ThemeCatalog lists and resolves themes.
type ThemeCatalog interface {
	Get(id string) theme.Theme
	List() []theme.Theme
}

// Handlers serves the HTTP endpoints.
type Handlers struct {
	Metadata MetadataService
	Resolver music.URLResolver
	Images   ImageFetcher
	Renderer CardRenderer
	Themes   ThemeCatalog
	// LyricLines is the excerpt length for fetched lyrics.
	LyricLines int
	// ProxyMaxAge is the Cache-Control max-age of proxied images.
	ProxyMaxAge int
	Log         *slog.Logger
}

// MetadataMaxAge is the Cache-Control max-age of metadata responses.
const MetadataMaxAge = 3600

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// metadataStatus maps the metadata error taxonomy onto HTTP statuses.
func metadataStatus(err error) int {
	var exhausted *fetch.RetryExhaustedError
	switch {
	case errors.Is(err, music.ErrMissingParameter),
		errors.Is(err, music.ErrUnsupportedPlatform),
		errors.Is(err, music.ErrNoURL),
		errors.Is(err, music.ErrUnrecognizedURL):
		return http.StatusBadRequest
	case errors.Is(err, music.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, music.ErrUpstreamError), errors.As(err, &exhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// metadata answers GET /metadata?platform=&id=, or ?url= with share text.
func (h *Handlers) metadata(c *gin.Context) {
	platform, id, shareURL := c.Query("platform"), c.Query("id"), c.Query("url")

	var (
		info music.CardInfo
		err  error
	)
	if platform == "" && id == "" && shareURL != "" {
		info, _, err = h.Metadata.Lookup(c.Request.Context(), shareURL)
	} else {
		info, err = h.Metadata.Fetch(c.Request.Context(), music.Platform(platform), id)
	}
	if err != nil {
		status := metadataStatus(err)
		if status >= http.StatusInternalServerError {
			h.Log.Error("metadata failed", "platform", platform, "id", id, "error", err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", MetadataMaxAge))
	c.JSON(http.StatusOK, info)
}

func setCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "*")
}

func (h *Handlers) imageProxyOptions(c *gin.Context) {
	setCORS(c)
	c.Status(http.StatusNoContent)
}

// proxyStatus maps fetch failures; upstream statuses pass through.
func proxyStatus(err error) int {
	var se *proxy.StatusError
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, proxy.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, proxy.ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, proxy.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, proxy.ErrBodyTooLarge), errors.Is(err, proxy.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// imageProxy answers GET /image-proxy?url=.
func (h *Handlers) imageProxy(c *gin.Context) {
	setCORS(c)
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}

	etag := proxy.WeakETag(target)
	if proxy.ETagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Header("ETag", etag)
		c.Status(http.StatusNotModified)
		return
	}

	resp, err := h.Images.Fetch(c.Request.Context(), target)
	if err != nil {
		status := proxyStatus(err)
		h.Log.Warn("image proxy failed", "status", status, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", h.ProxyMaxAge))
	c.Header("ETag", etag)
	c.Data(http.StatusOK, resp.ContentType, resp.Body)
}

// resolve answers GET /resolve?url= with the final URL after redirects.
func (h *Handlers) resolve(c *gin.Context) {
	text := c.Query("url")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}
	final, err := h.Resolver.Resolve(c.Request.Context(), text)
	if err != nil {
		if errors.Is(err, music.ErrNoURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.Log.Error("resolve failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": final})
}

type renderRequest struct {
	Info        *music.CardInfo  `json:"info"`
	Platform    string           `json:"platform"`
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Variant     string           `json:"variant"`
	ThemeID     string           `json:"themeId"`
	Elements    variant.Elements `json:"elements"`
	Background  json.RawMessage  `json:"background"`
	UseGradient bool             `json:"useGradient"`
}

// cardInfo returns the explicit card or fetches it. Fetched lyrics are cut
// to an excerpt.
func (h *Handlers) cardInfo(ctx context.Context, req renderRequest) (music.CardInfo, error) {
	if req.Info != nil {
		return req.Info.Normalize(), nil
	}

	var (
		info music.CardInfo
		err  error
	)
	switch {
	case req.Platform != "" || req.ID != "":
		info, err = h.Metadata.Fetch(ctx, music.Platform(req.Platform), req.ID)
	case req.URL != "":
		info, _, err = h.Metadata.Lookup(ctx, req.URL)
	default:
		return music.CardInfo{}, fmt.Errorf("%w: info, platform and id, or url", music.ErrMissingParameter)
	}
	if err != nil {
		return music.CardInfo{}, err
	}
	info.Lyrics = music.ProcessLyrics(info.Lyrics, h.LyricLines)
	return info, nil
}

// render answers POST /render with a PNG card.
func (h *Handlers) render(c *gin.Context) {
	var req renderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Variant == "" {
		req.Variant = string(variant.Poster)
	}

	profile, err := variant.Resolve(variant.Name(req.Variant), req.Elements)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var bg *variant.BackgroundConfig
	if len(req.Background) > 0 && string(req.Background) != "null" {
		cfg := variant.DefaultBackground()
		if err := json.Unmarshal(req.Background, &cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "background: " + err.Error()})
			return
		}
		if err := cfg.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bg = &cfg
	}

	info, err := h.cardInfo(c.Request.Context(), req)
	if err != nil {
		c.JSON(metadataStatus(err), gin.H{"error": err.Error()})
		return
	}

	png, err := h.Renderer.RenderPNG(c.Request.Context(), imagepkg.Request{
		Info:        info,
		Theme:       h.Themes.Get(req.ThemeID),
		Profile:     profile,
		Background:  bg,
		UseGradient: req.UseGradient,
	})
	if err != nil {
		body := gin.H{"error": err.Error()}
		var re *imagepkg.RenderError
		if errors.As(err, &re) {
			body["stage"] = re.Stage
		}
		h.Log.Error("render failed", "variant", req.Variant, "error", err)
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handlers) themes(c *gin.Context) {
	all := h.Themes.List()
	c.JSON(http.StatusOK, gin.H{"count": len(all), "themes": all})
}

func (h *Handlers) variants(c *gin.Context) {
	all := variant.List()
	c.JSON(http.StatusOK, gin.H{"count": len(all), "variants": all})
}

// qr returns a PNG of a QR code for the "text" query param.
func (h *Handlers) qr(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing text parameter"})
		return
	}
	size := imagepkg.DefaultQRSize
	if s := c.Query("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			size = v
		}
	}
	b, err := imagepkg.QRCodePNG(text, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}
