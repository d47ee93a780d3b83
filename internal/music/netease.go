package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/youruser/musiccard/internal/fetch"
	"github.com/youruser/musiccard/internal/util"
)

// NeteaseOptions configures the netease provider. Zero values select the
// defaults noted on each field.
type NeteaseOptions struct {
	// BaseURL defaults to http://music.163.com.
	BaseURL string
	// RequestTimeout bounds each HTTP request. Default 5s.
	RequestTimeout time.Duration
	// Deadline is shared by the detail and lyric requests. Default 8s.
	Deadline time.Duration
	// Policy retries each request independently.
	Policy     fetch.Policy
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Netease fetches track detail and lyrics from the netease cloud music API.
type Netease struct {
	base     string
	timeout  time.Duration
	deadline time.Duration
	policy   fetch.Policy
	client   *http.Client
	log      *slog.Logger
}

func NewNetease(opts NeteaseOptions) *Netease {
	n := &Netease{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		timeout:  opts.RequestTimeout,
		deadline: opts.Deadline,
		policy:   opts.Policy,
		client:   opts.HTTPClient,
		log:      opts.Logger,
	}
	if n.base == "" {
		n.base = "http://music.163.com"
	}
	if n.timeout <= 0 {
		n.timeout = 5 * time.Second
	}
	if n.deadline <= 0 {
		n.deadline = 8 * time.Second
	}
	if n.policy.MaxAttempts == 0 {
		n.policy = fetch.Policy{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2}
	}
	if n.client == nil {
		n.client = &http.Client{}
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	return n
}

func (n *Netease) Platform() Platform { return PlatformNetease }

type neteaseDetail struct {
	Songs []struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			PicURL string `json:"picUrl"`
		} `json:"album"`
		// Duration is in milliseconds.
		Duration int64 `json:"duration"`
	} `json:"songs"`
}

type neteaseLyric struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

var errSongNotFound = errors.New("song not found")

// Track issues the detail and lyric requests in parallel. Both share one
// deadline; if either fails the other is cancelled and the whole call fails.
func (n *Netease) Track(ctx context.Context, id string) (CardInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, n.deadline)
	defer cancel()

	var (
		detail *neteaseDetail
		lyric  *neteaseLyric
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := url.Values{"id": {id}, "ids": {"[" + id + "]"}}
		d, err := fetch.Retry(gctx, n.policy, func(ctx context.Context) (*neteaseDetail, error) {
			var d neteaseDetail
			if err := n.getJSON(ctx, "/api/song/detail/", q, &d); err != nil {
				return nil, err
			}
			if len(d.Songs) == 0 {
				return nil, &UpstreamError{Platform: PlatformNetease, Err: errSongNotFound}
			}
			return &d, nil
		})
		detail = d
		return err
	})
	g.Go(func() error {
		q := url.Values{"id": {id}, "lv": {"1"}, "kv": {"1"}, "tv": {"-1"}}
		l, err := fetch.Retry(gctx, n.policy, func(ctx context.Context) (*neteaseLyric, error) {
			var l neteaseLyric
			if err := n.getJSON(ctx, "/api/song/lyric", q, &l); err != nil {
				return nil, err
			}
			return &l, nil
		})
		lyric = l
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CardInfo{}, fmt.Errorf("%w: netease %s: %w", ErrUpstreamTimeout, id, err)
		}
		return CardInfo{}, classify(PlatformNetease, err)
	}

	song := detail.Songs[0]
	artists := make([]string, 0, len(song.Artists))
	for _, a := range song.Artists {
		artists = append(artists, a.Name)
	}

	return CardInfo{
		Title:    song.Name,
		Artist:   strings.Join(artists, ", "),
		CoverURL: song.Album.PicURL,
		Lyrics:   StripLRC(lyric.Lrc.Lyric),
		Duration: int(song.Duration / 1000),
	}, nil
}

func (n *Netease) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return fetch.Permanent(err)
	}
	req.Header.Set("User-Agent", util.BrowserUserAgent)
	req.Header.Set("Referer", "http://music.163.com")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &UpstreamError{Platform: PlatformNetease, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Platform: PlatformNetease, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	n.log.Debug("netease request ok", "path", path)
	return nil
}
