package music

import (
	"regexp"
	"strings"
)

// DefaultLyricLines is the excerpt length used when none is configured.
const DefaultLyricLines = 5

var lrcTimestamp = regexp.MustCompile(`\[\d{2}:\d{2}\.\d{2,3}\]`)

// creditMarkers flag lyricist/composer credit lines.
var creditMarkers = []string{"作词", "作曲"}

// fallbackQuotes stand in for tracks without lyrics.
var fallbackQuotes = []string{
	"音乐是流动的建筑，是时光的低语",
	"旋律是心灵的共鸣，节奏是生命的脉动",
	"在音符的海洋里，找寻内心的平静",
	"让音乐带我们去往心灵的远方",
}

func containsAny(hay string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(hay, n) {
			return true
		}
	}
	return false
}

// StripLRC removes LRC timestamps, trims every line and drops blank ones.
func StripLRC(lrc string) string {
	return strings.Join(cleanLines(lrc, nil), "\n")
}

func cleanLines(text string, drop []string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(lrcTimestamp.ReplaceAllString(l, ""))
		if l == "" || containsAny(l, drop) {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// ProcessLyrics picks a lineCount-line excerpt for a card. Credit lines are
// dropped; longer lyrics are cut starting a third of the way in, which is
// usually where the chorus starts. Empty lyrics yield the fallback quotes.
func ProcessLyrics(lyrics string, lineCount int) string {
	if lineCount <= 0 {
		lineCount = DefaultLyricLines
	}
	if strings.TrimSpace(lyrics) == "" {
		n := min(lineCount, len(fallbackQuotes))
		return strings.Join(fallbackQuotes[:n], "\n")
	}

	lines := cleanLines(lyrics, creditMarkers)
	if len(lines) <= lineCount {
		return strings.Join(lines, "\n")
	}
	start := len(lines) / 3
	end := min(start+lineCount, len(lines))
	return strings.Join(lines[start:end], "\n")
}
