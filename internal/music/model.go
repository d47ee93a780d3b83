// Package music turns platform track ids and share links into CardInfo
// values. It owns the platform providers, the read-through metadata cache,
// lyric excerpting and short-link resolution.
package music

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Platform identifies a metadata source.
type Platform string

const (
	PlatformNetease Platform = "netease"
	PlatformQQ      Platform = "qq"
	PlatformSpotify Platform = "spotify"
)

// CardInfo is everything a card needs to know about a track.
type CardInfo struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	CoverURL string `json:"coverUrl"`
	Lyrics   string `json:"lyrics"`
	// Duration is the track length in seconds.
	Duration int `json:"duration"`
	// PlayDuration is the displayed playback position in seconds. Zero means
	// derive it from Duration.
	PlayDuration int `json:"playDuration,omitempty"`
}

// Normalize returns a copy with text fields in NFC and titles trimmed, so
// codepoint truncation never splits a decomposed character.
func (c CardInfo) Normalize() CardInfo {
	c.Title = strings.TrimSpace(norm.NFC.String(c.Title))
	c.Artist = strings.TrimSpace(norm.NFC.String(c.Artist))
	c.Lyrics = norm.NFC.String(c.Lyrics)
	c.CoverURL = strings.TrimSpace(c.CoverURL)
	return c
}

// PlayPosition returns PlayDuration when set, otherwise floor(Duration*ratio).
func (c CardInfo) PlayPosition(ratio float64) int {
	if c.PlayDuration > 0 {
		return c.PlayDuration
	}
	return int(math.Floor(float64(c.Duration) * ratio))
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
