package usageimg

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Font is a parsed font file with the names used to key glyph coverage.
// Fonts are safe for concurrent use.
type Font struct {
	Family string
	Style  string
	f      *opentype.Font
}

// ParseFont parses TrueType or OpenType data.
// If family or style is empty, it is read from the font's name table.
func ParseFont(family, style string, data []byte) (*Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse font: %w", err)
	}
	var b sfnt.Buffer
	if family == "" {
		family, _ = f.Name(&b, sfnt.NameIDFamily)
	}
	if style == "" {
		style, _ = f.Name(&b, sfnt.NameIDSubfamily)
	}
	return &Font{Family: family, Style: style, f: f}, nil
}

// LoadFont reads and parses a font file, such as a CJK fallback.
func LoadFont(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read font: %w", err)
	}
	f, err := ParseFont("", "", data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func mustParse(family, style string, data []byte) func() *Font {
	return sync.OnceValue(func() *Font {
		f, err := ParseFont(family, style, data)
		if err != nil {
			panic(err)
		}
		return f
	})
}

var (
	// GoRegular is the Go proportional font.
	GoRegular = mustParse("Go", "Regular", goregular.TTF)
	// GoBold is the bold Go proportional font.
	GoBold = mustParse("Go", "Bold", gobold.TTF)
	// GoMono is the Go monospace font.
	GoMono = mustParse("Go Mono", "Regular", gomono.TTF)
)

// face is a font at a size, usable by one goroutine.
type face struct {
	font *Font
	size float64
	ff   font.Face
	m    font.Metrics
}

func newFace(f *Font, size float64) (*face, error) {
	ff, err := opentype.NewFace(f.f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("couldn't create %s %s face at %v: %w", f.Family, f.Style, size, err)
	}
	return &face{font: f, size: size, ff: ff, m: ff.Metrics()}, nil
}

// height is the face's line height in pixels.
func (f *face) height() float64 {
	return float64(f.m.Height) / 64
}

// ascent is the distance from the top of a line to the baseline in pixels.
func (f *face) ascent() int {
	return f.m.Ascent.Ceil()
}
