package music

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/youruser/musiccard/internal/fetch"
)

// SpotifyOptions configures the spotify provider.
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	// TokenURL and APIBaseURL default to the public Spotify endpoints.
	TokenURL   string
	APIBaseURL string
	Policy     fetch.Policy
	// HTTPClient carries token and API requests. Optional.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Spotify reads track metadata with app-only client credentials. The Web
// API has no lyrics, so Lyrics is always empty.
type Spotify struct {
	api    *spotify.Client
	policy fetch.Policy
	log    *slog.Logger
}

var spotifyID = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

func NewSpotify(opts SpotifyOptions) *Spotify {
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenURL,
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	var copts []spotify.ClientOption
	if opts.APIBaseURL != "" {
		base := opts.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		copts = append(copts, spotify.WithBaseURL(base))
	}

	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = fetch.DefaultPolicy()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Spotify{
		api:    spotify.New(cc.Client(ctx), copts...),
		policy: policy,
		log:    log,
	}
}

func (s *Spotify) Platform() Platform { return PlatformSpotify }

func (s *Spotify) Track(ctx context.Context, id string) (CardInfo, error) {
	if !spotifyID.MatchString(id) {
		return CardInfo{}, fmt.Errorf("%w: spotify id %q", ErrMissingParameter, id)
	}

	track, err := fetch.Retry(ctx, s.policy, func(ctx context.Context) (*spotify.FullTrack, error) {
		return s.api.GetTrack(ctx, spotify.ID(id))
	})
	if err != nil {
		return CardInfo{}, classify(PlatformSpotify, err)
	}

	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}
	var cover string
	if len(track.Album.Images) > 0 {
		cover = track.Album.Images[0].URL
	}

	s.log.Debug("spotify track", "id", id, "name", track.Name)
	return CardInfo{
		Title:    track.Name,
		Artist:   strings.Join(artists, ", "),
		CoverURL: cover,
		Duration: int(track.Duration) / 1000,
	}, nil
}
