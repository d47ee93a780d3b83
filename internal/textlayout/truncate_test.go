package textlayout

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

// fixedWidth measures every rune as w pixels wide and counts calls.
func fixedWidth(w float64, calls *int) MeasureFunc {
	return func(s string) float64 {
		if calls != nil {
			*calls++
		}
		return float64(utf8.RuneCountInString(s)) * w
	}
}

// cjkWidth measures ASCII as 10px and everything else as 20px.
func cjkWidth(s string) float64 {
	var w float64
	for _, r := range s {
		if r < 0x80 {
			w += 10
		} else {
			w += 20
		}
	}
	return w
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{name: "short untouched", text: "Hello", maxLen: 15, want: "Hello"},
		{name: "exact length", text: "abcde", maxLen: 5, want: "abcde"},
		{name: "ascii cut", text: "abcdefgh", maxLen: 3, want: "abc"},
		{name: "cjk cut by codepoints", text: "测试歌曲名称十六个字符测试超限", maxLen: 15, want: "测试歌曲名称十六个字符测试超限"},
		{name: "cjk over budget", text: "测试歌曲名称十六个字符测试超限啦", maxLen: 15, want: "测试歌曲名称十六个字符测试超限"},
		{name: "zero budget", text: "abc", maxLen: 0, want: ""},
		{name: "empty", text: "", maxLen: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.text, tt.maxLen)
			if got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
			if !strings.HasPrefix(tt.text, got) {
				t.Errorf("%q is not a prefix of %q", got, tt.text)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth float64
		want     string
	}{
		{name: "fits", text: "hello", maxWidth: 50, want: "hello"},
		{name: "cut ascii", text: "hello world", maxWidth: 45, want: "hell"},
		{name: "cut mixed", text: "ab测试cd", maxWidth: 45, want: "ab测"},
		{name: "nothing fits", text: "测试", maxWidth: 5, want: ""},
		{name: "zero budget", text: "abc", maxWidth: 0, want: ""},
		{name: "negative budget", text: "abc", maxWidth: -10, want: ""},
		{name: "empty", text: "", maxWidth: 100, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWidth(cjkWidth, tt.text, tt.maxWidth)
			if got != tt.want {
				t.Errorf("TruncateWidth(%q, %.0f) = %q, want %q", tt.text, tt.maxWidth, got, tt.want)
			}
		})
	}
}

func TestTruncateWidthProperties(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"The quick brown fox jumps over the lazy dog",
		"晴天 - 周杰伦 故事的小黄花 从出生那年就飘着",
		"mixed 混合 text テキスト 텍스트",
	}

	for _, text := range inputs {
		for budget := 0.0; budget <= 500; budget += 7 {
			got := TruncateWidth(cjkWidth, text, budget)

			if cjkWidth(got) > budget {
				t.Fatalf("width(%q) = %.0f exceeds %.0f", got, cjkWidth(got), budget)
			}
			if !strings.HasPrefix(text, got) {
				t.Fatalf("%q is not a prefix of %q", got, text)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result %q is not valid UTF-8", got)
			}
			if cjkWidth(text) <= budget && got != text {
				t.Fatalf("text fits in %.0f but was cut to %q", budget, got)
			}
			// Longest prefix: adding the next rune must overflow.
			if got != text {
				_, size := utf8.DecodeRuneInString(text[len(got):])
				if cjkWidth(text[:len(got)+size]) <= budget {
					t.Fatalf("prefix %q is not the longest that fits in %.0f", got, budget)
				}
			}
			if again := TruncateWidth(cjkWidth, text, budget); again != got {
				t.Fatalf("unstable result: %q then %q", got, again)
			}
		}
	}
}

func TestTruncateWidthLogarithmicCalls(t *testing.T) {
	text := strings.Repeat("x", 4096)
	var calls int
	TruncateWidth(fixedWidth(1, &calls), text, 1000)

	limit := int(math.Ceil(math.Log2(4096))) + 2
	if calls > limit {
		t.Errorf("measure called %d times, want <= %d", calls, limit)
	}
}

func TestParagraphs(t *testing.T) {
	measure := fixedWidth(10, nil)
	lyrics := "first line is long\n\nthird\n   \nfifth"

	t.Run("keep blank", func(t *testing.T) {
		got := Paragraphs(measure, lyrics, 100, false)
		if len(got) != 5 {
			t.Fatalf("len = %d, want 5", len(got))
		}
		if got[0].Text != "first line" {
			t.Errorf("line 0 = %q, want %q", got[0].Text, "first line")
		}
		for i, l := range got {
			if l.Row != i {
				t.Errorf("line %d row = %d", i, l.Row)
			}
		}
	})

	t.Run("skip blank keeps rows", func(t *testing.T) {
		got := Paragraphs(measure, lyrics, 100, true)
		wantRows := []int{0, 2, 4}
		if len(got) != len(wantRows) {
			t.Fatalf("len = %d, want %d (%+v)", len(got), len(wantRows), got)
		}
		for i, row := range wantRows {
			if got[i].Row != row {
				t.Errorf("line %d row = %d, want %d", i, got[i].Row, row)
			}
		}
		if got[1].Text != "third" || got[2].Text != "fifth" {
			t.Errorf("unexpected text: %+v", got)
		}
	})
}
