package imagepkg

import (
	"bytes"
	"fmt"
	"os"

	"github.com/tdewolff/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Fonts holds the parsed regular and bold typefaces. Parsed fonts are safe
// to share; faces are created per canvas.
type Fonts struct {
	Regular *opentype.Font
	Bold    *opentype.Font
}

// LoadFonts parses the font files at regularPath and boldPath. An empty
// path selects the bundled Go font. TTF, OTF, WOFF and WOFF2 are accepted.
func LoadFonts(regularPath, boldPath string) (*Fonts, error) {
	regular, err := loadFont(regularPath, goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("regular font: %w", err)
	}
	bold, err := loadFont(boldPath, gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("bold font: %w", err)
	}
	return &Fonts{Regular: regular, Bold: bold}, nil
}

// DefaultFonts returns the bundled Go fonts.
func DefaultFonts() *Fonts {
	f, err := LoadFonts("", "")
	if err != nil {
		panic(err)
	}
	return f
}

func loadFont(path string, fallback []byte) (*opentype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	if isWOFF(data) {
		sfnt, err := font.ToSFNT(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s to sfnt: %w", path, err)
		}
		data = sfnt
	}
	return opentype.Parse(data)
}

// isWOFF checks the "wOFF" and "wOF2" magic.
func isWOFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("wOFF")) || bytes.HasPrefix(data, []byte("wOF2"))
}
