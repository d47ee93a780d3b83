package music

import (
	"fmt"
	"regexp"
	"strings"
)

// TrackRef addresses one track on one platform.
type TrackRef struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id"`
}

var (
	embeddedURL = regexp.MustCompile(`https?://[^\s)]+`)

	neteaseTrack        = regexp.MustCompile(`music\.163\.com.*[?&]id=(\d+)`)
	neteaseMobileTrack  = regexp.MustCompile(`^https?://y\.music\.163\.com/m/song\?id=(\d+)`)
	neteaseMobileResult = regexp.MustCompile(`^https?://music\.163\.com/song/mobile/\?id=(\d+)`)
	spotifyTrack        = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?track/([0-9A-Za-z]{22})`)
)

// ExtractURL returns the first http(s) URL embedded in share text such as
// "分享歌曲 https://163cn.tv/xyz (来自网易云音乐)".
func ExtractURL(text string) (string, error) {
	u := embeddedURL.FindString(text)
	if u == "" {
		return "", ErrNoURL
	}
	return u, nil
}

// IsShortLink reports whether u must be resolved before it can be parsed.
func IsShortLink(u string) bool {
	return strings.Contains(u, "163cn.tv")
}

// ParseTrackURL recognizes full netease and spotify track URLs.
func ParseTrackURL(u string) (TrackRef, error) {
	for _, re := range []*regexp.Regexp{neteaseTrack, neteaseMobileTrack, neteaseMobileResult} {
		if m := re.FindStringSubmatch(u); m != nil {
			return TrackRef{Platform: PlatformNetease, ID: m[1]}, nil
		}
	}
	if m := spotifyTrack.FindStringSubmatch(u); m != nil {
		return TrackRef{Platform: PlatformSpotify, ID: m[1]}, nil
	}
	return TrackRef{}, fmt.Errorf("%w: %s", ErrUnrecognizedURL, u)
}
