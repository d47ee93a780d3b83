// Package proxy fetches images from third-party origins that refuse
// ordinary clients. It backs both the /image-proxy endpoint and the
// renderer's direct image loads.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/youruser/musiccard/internal/util"
)

// MaxBodyBytes caps a single upstream response.
const MaxBodyBytes = 20 << 20

// DefaultContentType is assumed when the origin omits one.
const DefaultContentType = "image/jpeg"

var (
	ErrInvalidURL      = errors.New("invalid upstream url")
	ErrHostNotAllowed  = errors.New("upstream host not allowed")
	ErrTimeout         = errors.New("upstream timeout")
	ErrBodyTooLarge    = errors.New("upstream body too large")
	ErrUpstreamFailure = errors.New("upstream request failed")
)

// StatusError carries a non-2xx upstream status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	Referer      string
	AllowedHosts []string
	Client       *http.Client
	Logger       *slog.Logger
}

// Fetcher downloads upstream resources with a browser-like identity.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	referer      string
	allowedHosts []string
	log          *slog.Logger
}

// Response is a fully read upstream body.
type Response struct {
	Body        []byte
	ContentType string
}

// New validates the allow-list patterns and returns a Fetcher.
func New(opts Options) (*Fetcher, error) {
	for _, p := range opts.AllowedHosts {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid allowed host pattern %q", p)
		}
	}

	f := &Fetcher{
		timeout:      opts.Timeout,
		userAgent:    opts.UserAgent,
		referer:      opts.Referer,
		allowedHosts: opts.AllowedHosts,
		log:          opts.Logger,
	}
	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.CheckRedirect = f.checkRedirect(client.CheckRedirect)
	f.client = client
	if f.timeout <= 0 {
		f.timeout = 5 * time.Second
	}
	if f.userAgent == "" {
		f.userAgent = util.BrowserUserAgent
	}
	if len(f.allowedHosts) == 0 {
		f.allowedHosts = []string{"**"}
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f, nil
}

// HostAllowed reports whether host matches one of the allow-list globs.
func (f *Fetcher) HostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, p := range f.allowedHosts {
		if ok, err := doublestar.Match(p, host); err == nil && ok {
			return true
		}
	}
	return false
}

// maxRedirects matches net/http's default limit.
const maxRedirects = 10

// checkRedirect applies the allow-list to every redirect hop before next
// (the client's own policy, if any) runs.
func (f *Fetcher) checkRedirect(next func(*http.Request, []*http.Request) error) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !f.HostAllowed(req.URL.Hostname()) {
			return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Hostname())
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}

// Fetch downloads rawURL. Credentials embedded in the URL are stripped
// before the request leaves the process. Timeouts return ErrTimeout;
// non-2xx answers return *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if !util.IsHTTPURL(rawURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	clean, err := util.StripCredentials(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u, _ := url.Parse(clean)
	if !f.HostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clean, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrHostNotAllowed) {
			f.log.Warn("redirect to disallowed host", "host", u.Host, "error", err)
			return nil, err
		}
		if util.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, u.Host)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Debug("upstream non-2xx", "host", u.Host, "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		if util.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, u.Host)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamFailure, err)
	}
	if len(body) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = DefaultContentType
	}

	f.log.Debug("upstream fetched", "host", u.Host, "bytes", len(body), "took", time.Since(start))
	return &Response{Body: body, ContentType: ct}, nil
}

// WeakETag derives a weak validator from the upstream URL. The same URL
// always maps to the same tag, which is what long-lived image caching needs.
func WeakETag(rawURL string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rawURL))
	return fmt.Sprintf(`W/"%x"`, h.Sum64())
}

// ETagMatches reports whether an If-None-Match header value names etag.
func ETagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == want {
			return true
		}
	}
	return false
}
