package music

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youruser/musiccard/internal/logger"
)

type fakeProvider struct {
	platform Platform
	calls    atomic.Int32
	info     CardInfo
	err      error
}

func (f *fakeProvider) Platform() Platform { return f.platform }

func (f *fakeProvider) Track(ctx context.Context, id string) (CardInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return CardInfo{}, f.err
	}
	return f.info, nil
}

type fakeResolver struct {
	to  string
	err error
}

func (r fakeResolver) Resolve(ctx context.Context, text string) (string, error) {
	return r.to, r.err
}

func TestServiceFetchCaches(t *testing.T) {
	p := &fakeProvider{platform: PlatformNetease, info: CardInfo{
		Title:    "T",
		Artist:   "A",
		CoverURL: "https://p1.music.126.net/cover.jpg",
		Lyrics:   "la la",
		Duration: 245,
	}}
	svc := NewService(24*time.Hour, nil, logger.Discard(), p)

	first, err := svc.Fetch(context.Background(), PlatformNetease, "12345")
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := svc.Fetch(context.Background(), PlatformNetease, "12345")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if first != second {
		t.Errorf("payloads differ: %+v vs %+v", first, second)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls.Load())
	}
}

func TestServiceCacheExpiry(t *testing.T) {
	p := &fakeProvider{platform: PlatformNetease, info: CardInfo{Title: "T"}}
	svc := NewService(24*time.Hour, nil, logger.Discard(), p)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	svc.Cache().SetClock(func() time.Time { return now })

	if _, err := svc.Fetch(context.Background(), PlatformNetease, "1"); err != nil {
		t.Fatal(err)
	}

	now = t0.Add(24*time.Hour - time.Nanosecond)
	if _, err := svc.Fetch(context.Background(), PlatformNetease, "1"); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("calls before ttl = %d, want 1", p.calls.Load())
	}

	now = t0.Add(24 * time.Hour)
	if _, err := svc.Fetch(context.Background(), PlatformNetease, "1"); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 2 {
		t.Errorf("calls at ttl = %d, want 2", p.calls.Load())
	}
}

func TestServiceFailuresNotCached(t *testing.T) {
	p := &fakeProvider{platform: PlatformNetease, err: &UpstreamError{Platform: PlatformNetease, Status: 502}}
	svc := NewService(time.Hour, nil, logger.Discard(), p)

	for i := 0; i < 2; i++ {
		_, err := svc.Fetch(context.Background(), PlatformNetease, "9")
		if !errors.Is(err, ErrUpstreamError) {
			t.Fatalf("error = %v, want ErrUpstreamError", err)
		}
	}
	if p.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", p.calls.Load())
	}
	if svc.Cache().Len() != 0 {
		t.Errorf("cache len = %d, want 0", svc.Cache().Len())
	}
}

func TestServiceFetchValidation(t *testing.T) {
	svc := NewService(time.Hour, nil, logger.Discard(), &fakeProvider{platform: PlatformNetease})

	tests := []struct {
		name     string
		platform Platform
		id       string
		want     error
	}{
		{name: "no platform", id: "1", want: ErrMissingParameter},
		{name: "no id", platform: PlatformNetease, want: ErrMissingParameter},
		{name: "qq has no provider", platform: PlatformQQ, id: "1", want: ErrUnsupportedPlatform},
		{name: "unknown", platform: "bandcamp", id: "1", want: ErrUnsupportedPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Fetch(context.Background(), tt.platform, tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServiceParse(t *testing.T) {
	tests := []struct {
		name     string
		resolver URLResolver
		text     string
		want     TrackRef
		wantErr  error
	}{
		{
			name: "full url",
			text: "listen https://music.163.com/song?id=186016 now",
			want: TrackRef{PlatformNetease, "186016"},
		},
		{
			name:     "short link resolved",
			resolver: fakeResolver{to: "https://music.163.com/song/mobile/?id=42"},
			text:     "分享 https://163cn.tv/xyz (来自网易云音乐)",
			want:     TrackRef{PlatformNetease, "42"},
		},
		{
			name:    "short link without resolver",
			text:    "https://163cn.tv/xyz",
			wantErr: ErrUnrecognizedURL,
		},
		{
			name:    "no url",
			text:    "晴天",
			wantErr: ErrNoURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(time.Hour, tt.resolver, logger.Discard())
			got, err := svc.Parse(context.Background(), tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestServicePlatforms(t *testing.T) {
	svc := NewService(time.Hour, nil, logger.Discard(),
		&fakeProvider{platform: PlatformSpotify},
		&fakeProvider{platform: PlatformNetease},
	)
	got := svc.Platforms()
	if len(got) != 2 || got[0] != PlatformNetease || got[1] != PlatformSpotify {
		t.Errorf("Platforms = %v", got)
	}
}
