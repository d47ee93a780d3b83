// Package textlayout fits single lines of text into a pixel or codepoint
// budget. It never wraps, reshapes or appends an ellipsis: output is always
// a prefix of the input.
package textlayout

import (
	"strings"
	"unicode/utf8"
)

// MeasureFunc returns the rendered width of s in pixels. It must be
// non-decreasing in the length of s.
type MeasureFunc func(s string) float64

// TruncateRunes cuts text to at most maxLen codepoints.
func TruncateRunes(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == maxLen {
			return text[:i]
		}
		n++
	}
	return text
}

// TruncateWidth returns the longest codepoint prefix of text whose measured
// width does not exceed maxWidth. It calls measure O(log n) times.
// A negative budget yields the empty string.
func TruncateWidth(measure MeasureFunc, text string, maxWidth float64) string {
	if maxWidth < 0 {
		return ""
	}
	if measure(text) <= maxWidth {
		return text
	}

	// offsets[k] is the byte offset of the k-th rune boundary.
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	// The full text is known not to fit, so search cut positions [0, n-1].
	lo, hi := 0, len(offsets)-2
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if measure(text[:offsets[mid]]) <= maxWidth {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return text[:offsets[best]]
}

// Line is one laid-out lyric line. Row is the paragraph index, so the line
// is drawn Row line-heights below the block origin.
type Line struct {
	Text string
	Row  int
}

// Paragraphs splits text on caller-supplied line breaks and fits each
// paragraph to maxWidth independently. Paragraphs are never merged or
// reflowed. With skipBlank, whitespace-only paragraphs produce no Line but
// still consume their row.
func Paragraphs(measure MeasureFunc, text string, maxWidth float64, skipBlank bool) []Line {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]Line, 0, len(paragraphs))
	for row, p := range paragraphs {
		if skipBlank && strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, Line{Text: TruncateWidth(measure, p, maxWidth), Row: row})
	}
	return lines
}
