package music

import (
	"errors"
	"testing"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "分享周杰伦的单曲《晴天》: https://163cn.tv/abc123 (来自@网易云音乐)", want: "https://163cn.tv/abc123"},
		{in: "https://music.163.com/song?id=186016&userid=1", want: "https://music.163.com/song?id=186016&userid=1"},
		{in: "no link here", wantErr: ErrNoURL},
	}
	for _, tt := range tests {
		got, err := ExtractURL(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExtractURL(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ExtractURL(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestParseTrackURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    TrackRef
		wantErr bool
	}{
		{name: "desktop", in: "https://music.163.com/song?id=186016", want: TrackRef{PlatformNetease, "186016"}},
		{name: "hash route", in: "https://music.163.com/#/song?id=12345", want: TrackRef{PlatformNetease, "12345"}},
		{name: "extra params", in: "https://music.163.com/song?userid=9&id=777", want: TrackRef{PlatformNetease, "777"}},
		{name: "mobile share", in: "https://y.music.163.com/m/song?id=4242", want: TrackRef{PlatformNetease, "4242"}},
		{name: "mobile redirect", in: "http://music.163.com/song/mobile/?id=99", want: TrackRef{PlatformNetease, "99"}},
		{name: "spotify", in: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x", want: TrackRef{PlatformSpotify, "4uLU6hMCjMI75M1A2tKUQC"}},
		{name: "spotify intl", in: "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC", want: TrackRef{PlatformSpotify, "4uLU6hMCjMI75M1A2tKUQC"}},
		{name: "unknown", in: "https://example.com/track/1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrackURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnrecognizedURL) {
					t.Fatalf("error = %v, want ErrUnrecognizedURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTrackURL = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsShortLink(t *testing.T) {
	if !IsShortLink("https://163cn.tv/abc") {
		t.Error("163cn.tv should be a short link")
	}
	if IsShortLink("https://music.163.com/song?id=1") {
		t.Error("full url is not a short link")
	}
}
