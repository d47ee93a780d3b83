package music

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/youruser/musiccard/internal/fetch"
)

// Provider fetches track metadata from one platform.
type Provider interface {
	Platform() Platform
	Track(ctx context.Context, id string) (CardInfo, error)
}

// URLResolver follows redirects on a share link.
type URLResolver interface {
	Resolve(ctx context.Context, text string) (string, error)
}

// Service is the metadata entry point. A successful lookup is cached under
// "platform:id"; failures never are.
type Service struct {
	providers map[Platform]Provider
	cache     *fetch.Cache[string, CardInfo]
	resolver  URLResolver
	log       *slog.Logger
}

// NewService wires providers behind a metadata cache of the given TTL.
// resolver may be nil, in which case short links are rejected.
func NewService(ttl time.Duration, resolver URLResolver, log *slog.Logger, providers ...Provider) *Service {
	s := &Service{
		providers: make(map[Platform]Provider, len(providers)),
		cache:     fetch.NewCache[string, CardInfo](ttl),
		resolver:  resolver,
		log:       log,
	}
	for _, p := range providers {
		s.providers[p.Platform()] = p
	}
	return s
}

// Cache exposes the metadata cache for lifecycle control.
func (s *Service) Cache() *fetch.Cache[string, CardInfo] { return s.cache }

// Platforms lists the platforms with a registered provider.
func (s *Service) Platforms() []Platform {
	out := make([]Platform, 0, len(s.providers))
	for _, p := range []Platform{PlatformNetease, PlatformQQ, PlatformSpotify} {
		if _, ok := s.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func cacheKey(p Platform, id string) string {
	return string(p) + ":" + id
}

// Fetch returns metadata for platform/id, serving from cache when a fresh
// entry exists.
func (s *Service) Fetch(ctx context.Context, platform Platform, id string) (CardInfo, error) {
	if platform == "" || id == "" {
		return CardInfo{}, ErrMissingParameter
	}
	provider, ok := s.providers[platform]
	if !ok {
		return CardInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	key := cacheKey(platform, id)
	if info, ok := s.cache.Get(key); ok {
		s.log.Debug("metadata cache hit", "key", key)
		return info, nil
	}

	start := time.Now()
	info, err := provider.Track(ctx, id)
	if err != nil {
		s.log.Warn("metadata fetch failed", "key", key, "error", err)
		return CardInfo{}, err
	}
	info = info.Normalize()
	s.cache.Set(key, info)

	s.log.Info("metadata fetched", "key", key, "title", info.Title, "took", time.Since(start))
	return info, nil
}

// Lookup resolves share text to a track and fetches it.
func (s *Service) Lookup(ctx context.Context, text string) (CardInfo, TrackRef, error) {
	ref, err := s.Parse(ctx, text)
	if err != nil {
		return CardInfo{}, TrackRef{}, err
	}
	info, err := s.Fetch(ctx, ref.Platform, ref.ID)
	return info, ref, err
}

// Parse extracts the track reference from share text, following short
// links through the resolver.
func (s *Service) Parse(ctx context.Context, text string) (TrackRef, error) {
	u, err := ExtractURL(text)
	if err != nil {
		return TrackRef{}, err
	}
	if IsShortLink(u) {
		if s.resolver == nil {
			return TrackRef{}, fmt.Errorf("%w: short link %s", ErrUnrecognizedURL, u)
		}
		resolved, err := s.resolver.Resolve(ctx, u)
		if err != nil {
			return TrackRef{}, fmt.Errorf("resolve short link: %w", err)
		}
		u = resolved
	}
	return ParseTrackURL(u)
}
