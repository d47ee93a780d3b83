package imagepkg

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/youruser/musiccard/internal/fetch"
	"github.com/youruser/musiccard/internal/proxy"
	"github.com/youruser/musiccard/internal/util"
)

// DefaultLoadTimeout bounds one image load, retries included.
const DefaultLoadTimeout = 10 * time.Second

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// AssetsDir serves refs that start with "/", e.g. "/templates/phone.png".
	AssetsDir string
	// ProxyBase, when set, routes remote URLs through an image proxy
	// endpoint: the escaped URL is appended to it.
	ProxyBase string
	// Fetcher loads remote URLs directly when ProxyBase is empty.
	Fetcher *proxy.Fetcher
	Timeout time.Duration
	Policy  fetch.Policy
	Client  *http.Client
	Logger  *slog.Logger
}

// Loader decodes images from local assets, data URIs and remote URLs.
// Decoded images are kept for the lifetime of the Loader, keyed by ref.
type Loader struct {
	assetsDir string
	proxyBase string
	fetcher   *proxy.Fetcher
	timeout   time.Duration
	policy    fetch.Policy
	client    *http.Client
	log       *slog.Logger
	cache     *fetch.Cache[string, image.Image]
}

// NewLoader returns a Loader. Without a Fetcher and a ProxyBase, remote
// URLs fail with a network ImageLoadError.
func NewLoader(opts LoaderOptions) *Loader {
	l := &Loader{
		assetsDir: opts.AssetsDir,
		proxyBase: opts.ProxyBase,
		fetcher:   opts.Fetcher,
		timeout:   opts.Timeout,
		policy:    opts.Policy,
		client:    opts.Client,
		log:       opts.Logger,
		cache:     fetch.NewCache[string, image.Image](0),
	}
	if l.timeout <= 0 {
		l.timeout = DefaultLoadTimeout
	}
	if l.policy.Validate() != nil {
		l.policy = fetch.Policy{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2}
	}
	if l.client == nil {
		l.client = &http.Client{}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Cache exposes the decoded-image cache.
func (l *Loader) Cache() *fetch.Cache[string, image.Image] {
	return l.cache
}

// Load returns the decoded image for ref. Failures are *fetch.ImageLoadError.
// Data URIs decode locally and are never memoized, so uploaded images do not
// outlive the request that carried them.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	inline := strings.HasPrefix(ref, "data:")
	if !inline {
		if img, ok := l.cache.Get(ref); ok {
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	img, err := fetch.Retry(ctx, l.policy, func(ctx context.Context) (image.Image, error) {
		data, err := l.read(ctx, ref)
		if err != nil {
			return nil, err
		}
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fetch.Permanent(&fetch.ImageLoadError{URL: redact(ref), Kind: fetch.ImageLoadDecode, Err: err})
		}
		return img, nil
	})
	if err != nil {
		return nil, l.classify(ctx, ref, err)
	}

	if !inline {
		l.cache.Set(ref, img)
	}
	return img, nil
}

func (l *Loader) classify(ctx context.Context, ref string, err error) error {
	var le *fetch.ImageLoadError
	if errors.As(err, &le) {
		return le
	}
	kind := fetch.ImageLoadNetwork
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || util.IsTimeout(err) || errors.Is(err, proxy.ErrTimeout) {
		kind = fetch.ImageLoadTimeout
	}
	l.log.Debug("image load failed", "ref", redact(ref), "kind", kind, "error", err)
	return &fetch.ImageLoadError{URL: redact(ref), Kind: kind, Err: err}
}

func (l *Loader) read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//"):
		return l.readAsset(ref)
	case util.IsHTTPURL(ref):
		if l.proxyBase != "" {
			return l.readViaProxy(ctx, ref)
		}
		if l.fetcher == nil {
			return nil, fetch.Permanent(fmt.Errorf("no remote fetcher configured for %s", redact(ref)))
		}
		resp, err := l.fetcher.Fetch(ctx, ref)
		if err != nil {
			if errors.Is(err, proxy.ErrInvalidURL) || errors.Is(err, proxy.ErrHostNotAllowed) {
				return nil, fetch.Permanent(err)
			}
			return nil, err
		}
		return resp.Body, nil
	default:
		return nil, fetch.Permanent(fmt.Errorf("unsupported image ref %q", redact(ref)))
	}
}

func (l *Loader) readAsset(ref string) ([]byte, error) {
	if l.assetsDir == "" {
		return nil, fetch.Permanent(fmt.Errorf("no assets dir for %s", ref))
	}
	clean := path.Clean(ref)
	b, err := os.ReadFile(filepath.Join(l.assetsDir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fetch.Permanent(err)
	}
	return b, nil
}

func (l *Loader) readViaProxy(ctx context.Context, ref string) ([]byte, error) {
	clean, err := util.StripCredentials(ref)
	if err != nil {
		return nil, fetch.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.proxyBase+url.QueryEscape(clean), nil)
	if err != nil {
		return nil, fetch.Permanent(err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &proxy.StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, proxy.MaxBodyBytes))
}

// decodeDataURI handles "data:[<mediatype>][;base64],<data>".
func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fetch.Permanent(errors.New("malformed data uri"))
	}
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fetch.Permanent(fmt.Errorf("data uri: %w", err))
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fetch.Permanent(fmt.Errorf("data uri: %w", err))
	}
	return []byte(s), nil
}

// redact shortens data URIs and drops credentials for logs and errors.
func redact(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		meta, _, _ := strings.Cut(ref, ",")
		return meta + ",..."
	}
	if clean, err := util.StripCredentials(ref); err == nil {
		return clean
	}
	return ref
}
