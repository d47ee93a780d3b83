package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youruser/musiccard/internal/fetch"
	imagepkg "github.com/youruser/musiccard/internal/image"
	"github.com/youruser/musiccard/internal/logger"
	"github.com/youruser/musiccard/internal/music"
	"github.com/youruser/musiccard/internal/proxy"
	"github.com/youruser/musiccard/internal/theme"
	"github.com/youruser/musiccard/internal/variant"
)

type fakeMetadata struct {
	info music.CardInfo
	err  error
	refs []string
}

func (f *fakeMetadata) Fetch(ctx context.Context, p music.Platform, id string) (music.CardInfo, error) {
	f.refs = append(f.refs, string(p)+":"+id)
	if f.err != nil {
		return music.CardInfo{}, f.err
	}
	if p == "" || id == "" {
		return music.CardInfo{}, music.ErrMissingParameter
	}
	return f.info, nil
}

func (f *fakeMetadata) Lookup(ctx context.Context, text string) (music.CardInfo, music.TrackRef, error) {
	f.refs = append(f.refs, "lookup:"+text)
	if f.err != nil {
		return music.CardInfo{}, music.TrackRef{}, f.err
	}
	return f.info, music.TrackRef{Platform: music.PlatformNetease, ID: "1"}, nil
}

type fakeResolver struct {
	final string
	err   error
}

func (f fakeResolver) Resolve(ctx context.Context, text string) (string, error) {
	return f.final, f.err
}

type fakeRenderer struct {
	mu   sync.Mutex
	got  []imagepkg.Request
	err  error
	body []byte
}

func (f *fakeRenderer) RenderPNG(ctx context.Context, req imagepkg.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type testEnv struct {
	router   *gin.Engine
	meta     *fakeMetadata
	renderer *fakeRenderer
	upstream *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.jpg":
			if r.Header.Get("Referer") != "http://music.163.com" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		case "/slow.jpg":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	fetcher, err := proxy.New(proxy.Options{Timeout: 100 * time.Millisecond, Referer: "http://music.163.com", Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := theme.NewCatalog("", log)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		meta: &fakeMetadata{info: music.CardInfo{
			Title: "T", Artist: "A", CoverURL: "https://p1.music.126.net/c.jpg",
			Lyrics: "l1\nl2\nl3\nl4\nl5\nl6\nl7\nl8\nl9", Duration: 245,
		}},
		renderer: &fakeRenderer{body: []byte("\x89PNG fake")},
		upstream: upstream,
	}
	env.router = NewRouter(&Handlers{
		Metadata:    env.meta,
		Resolver:    fakeResolver{final: "https://music.163.com/song?id=1"},
		Images:      fetcher,
		Renderer:    env.renderer,
		Themes:      catalog,
		LyricLines:  5,
		ProxyMaxAge: 31536000,
		Log:         log,
	}, log)
	return env
}

func (e *testEnv) do(method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, map[string]string{RequestIDHeader: "abc-123"})
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/metadata?platform=netease&id=12345", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
	var info music.CardInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Title != "T" || info.Duration != 245 {
		t.Errorf("info = %+v", info)
	}
	if env.meta.refs[0] != "netease:12345" {
		t.Errorf("refs = %v", env.meta.refs)
	}
}

func TestMetadataByShareURL(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/metadata?url="+url.QueryEscape("listen https://163cn.tv/xyz"), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env.meta.refs[0] != "lookup:listen https://163cn.tv/xyz" {
		t.Errorf("refs = %v", env.meta.refs)
	}
}

func TestMetadataErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{name: "missing params", query: "", status: http.StatusBadRequest},
		{name: "unsupported", query: "?platform=tidal&id=1", err: fmt.Errorf("%w: tidal", music.ErrUnsupportedPlatform), status: http.StatusBadRequest},
		{name: "timeout", query: "?platform=netease&id=1", err: music.ErrUpstreamTimeout, status: http.StatusGatewayTimeout},
		{name: "upstream", query: "?platform=netease&id=1", err: &music.UpstreamError{Platform: music.PlatformNetease, Status: 500}, status: http.StatusBadGateway},
		{name: "unexpected", query: "?platform=netease&id=1", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.meta.err = tt.err
			w := env.do(http.MethodGet, "/metadata"+tt.query, nil, nil)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body = %s, want error field", w.Body.String())
			}
		})
	}
}

func TestImageProxy(t *testing.T) {
	env := newTestEnv(t)
	target := env.upstream.URL + "/cover.jpg"

	w := env.do(http.MethodGet, "/image-proxy?url="+url.QueryEscape(target), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "jpeg-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS = %q", got)
	}
	etag := w.Header().Get("ETag")
	if etag != proxy.WeakETag(target) {
		t.Errorf("ETag = %q", etag)
	}

	w = env.do(http.MethodGet, "/image-proxy?url="+url.QueryEscape(target), nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Errorf("revalidation status = %d, want 304", w.Code)
	}
}

func TestImageProxyErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing url", query: "", status: http.StatusBadRequest},
		{name: "not http", query: "?url=" + url.QueryEscape("ftp://example.com/a.jpg"), status: http.StatusBadRequest},
		{name: "upstream 404", query: "?url=" + url.QueryEscape(env.upstream.URL+"/missing.jpg"), status: http.StatusNotFound},
		{name: "timeout", query: "?url=" + url.QueryEscape(env.upstream.URL+"/slow.jpg"), status: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/image-proxy"+tt.query, nil, nil)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestImageProxyPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodOptions, "/image-proxy", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" || !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "GET") {
		t.Errorf("headers = %v", w.Header())
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		resolver fakeResolver
		status   int
		want     string
	}{
		{name: "ok", query: "?url=" + url.QueryEscape("see https://163cn.tv/x"), resolver: fakeResolver{final: "https://music.163.com/song?id=9"}, status: http.StatusOK, want: `"url":"https://music.163.com/song?id=9"`},
		{name: "missing", query: "", status: http.StatusBadRequest},
		{name: "no url in text", query: "?url=hello", resolver: fakeResolver{err: music.ErrNoURL}, status: http.StatusBadRequest},
		{name: "exhausted", query: "?url=https://163cn.tv/x", resolver: fakeResolver{err: &fetch.RetryExhaustedError{Attempts: 3, Err: errors.New("503")}}, status: http.StatusInternalServerError, want: "failed after 3 attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			log := logger.Discard()
			r := NewRouter(&Handlers{Resolver: tt.resolver, Log: log}, log)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resolve"+tt.query, nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.want != "" && !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %s", w.Body.String(), tt.want)
			}
		})
	}
}

func TestRenderWithExplicitInfo(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{
		"info": {"title": "Song", "artist": "Band", "coverUrl": "data:image/png;base64,AA", "lyrics": "a\nb", "duration": 90},
		"variant": "phone",
		"themeId": "nord",
		"elements": {"lyrics": {"x": 0.2, "y": 0.5, "size": 30, "visible": true}},
		"background": {"image": "/bg.png", "blur": 4},
		"useGradient": true
	}`)

	w := env.do(http.MethodPost, "/render", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}

	req := env.renderer.got[0]
	if req.Profile.Name != variant.Phone || req.Profile.Elements[variant.Lyrics].X != 0.2 {
		t.Errorf("profile = %+v", req.Profile)
	}
	if req.Theme.ID != "nord" {
		t.Errorf("theme = %s", req.Theme.ID)
	}
	if req.Background == nil || req.Background.BlurRadius != 4 || req.Background.Opacity != 1 || req.Background.Gradient == nil {
		t.Errorf("background = %+v, want defaults kept", req.Background)
	}
	if !req.UseGradient || req.Info.Lyrics != "a\nb" {
		t.Errorf("request = %+v", req)
	}
	if len(env.meta.refs) != 0 {
		t.Errorf("metadata was fetched: %v", env.meta.refs)
	}
}

func TestRenderFetchesMetadata(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/render", []byte(`{"platform":"netease","id":"12345","themeId":"unknown"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	req := env.renderer.got[0]
	if req.Profile.Name != variant.Poster {
		t.Errorf("variant = %s, want poster default", req.Profile.Name)
	}
	if req.Theme.ID != theme.DefaultID {
		t.Errorf("theme = %s, want default fallback", req.Theme.ID)
	}
	if req.Info.Lyrics != "l4\nl5\nl6\nl7\nl8" {
		t.Errorf("lyrics excerpt = %q", req.Info.Lyrics)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		metaErr   error
		renderErr error
		status    int
		want      string
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "unknown variant", body: `{"variant":"banner","platform":"netease","id":"1"}`, status: http.StatusBadRequest},
		{name: "element out of canvas", body: `{"elements":{"title":{"x":2,"y":0}},"platform":"netease","id":"1"}`, status: http.StatusBadRequest},
		{name: "oversized cover", body: `{"elements":{"cover":{"x":0,"y":0,"size":10000000,"visible":true}},"platform":"netease","id":"1"}`, status: http.StatusBadRequest},
		{name: "oversized title", body: `{"elements":{"title":{"x":0,"y":0,"size":2000,"visible":true}},"platform":"netease","id":"1"}`, status: http.StatusBadRequest},
		{name: "bad gradient", body: `{"variant":"phone","background":{"gradient":{"angle":0,"colors":["#000"],"stops":[0,1]}},"platform":"netease","id":"1"}`, status: http.StatusBadRequest},
		{name: "no track", body: `{}`, status: http.StatusBadRequest},
		{name: "metadata timeout", body: `{"platform":"netease","id":"1"}`, metaErr: music.ErrUpstreamTimeout, status: http.StatusGatewayTimeout},
		{
			name:      "render failure",
			body:      `{"platform":"netease","id":"1"}`,
			renderErr: &imagepkg.RenderError{Stage: imagepkg.StageLoadAssets, Err: errors.New("cover")},
			status:    http.StatusInternalServerError,
			want:      `"stage":"LOAD_ASSETS"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.meta.err = tt.metaErr
			env.renderer.err = tt.renderErr
			w := env.do(http.MethodPost, "/render", []byte(tt.body), nil)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.want != "" && !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %s", w.Body.String(), tt.want)
			}
		})
	}
}

func TestListings(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/themes", nil, nil)
	var themes struct {
		Count  int           `json:"count"`
		Themes []theme.Theme `json:"themes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &themes); err != nil {
		t.Fatal(err)
	}
	if themes.Count != 8 || themes.Themes[0].ID != theme.DefaultID {
		t.Errorf("themes = %+v", themes)
	}

	w = env.do(http.MethodGet, "/variants", nil, nil)
	var variants struct {
		Count    int               `json:"count"`
		Variants []variant.Profile `json:"variants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &variants); err != nil {
		t.Fatal(err)
	}
	if variants.Count != 3 || variants.Variants[2].Width != 1000 {
		t.Errorf("variants = %+v", variants)
	}
}

func TestQR(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/qr?text=hello&size=128", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, type %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w := env.do(http.MethodGet, "/qr", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d, want 400", w.Code)
	}
}
