package usageimg

import (
	"image/color"
)

// Face selects a font and size for one kind of line.
type Face struct {
	Font *Font
	// Size is in points at 72 DPI, i.e. pixels.
	Size float64
}

// Style is the layout and palette of usage images.
type Style struct {
	MaxWidth    int
	MinWidth    int
	Padding     int
	LineSpacing float64
	Background  color.Color
	Foreground  color.Color

	Title   Face
	Heading Face
	Body    Face
	Code    Face
	// Fallback draws characters the line's own font lacks.
	// If nil, the body font is used.
	Fallback *Font
}

// DefaultStyle returns the default style using the Go fonts.
func DefaultStyle() Style {
	return Style{
		MaxWidth:    900,
		MinWidth:    420,
		Padding:     20,
		LineSpacing: 1.25,
		Background:  color.White,
		Foreground:  color.Black,
		Title:       Face{Font: GoBold(), Size: 20},
		Heading:     Face{Font: GoBold(), Size: 16},
		Body:        Face{Font: GoRegular(), Size: 14},
		Code:        Face{Font: GoMono(), Size: 14},
	}
}

// MinHeight is the smallest height of a rendered image.
const MinHeight = 120

// normalize fills unset fields from the default style and enforces minimums.
// Padding is taken as given, so a zero Style draws without a margin.
func (s Style) normalize() Style {
	d := DefaultStyle()
	if s.MaxWidth == 0 {
		s.MaxWidth = d.MaxWidth
	}
	if s.MinWidth == 0 {
		s.MinWidth = d.MinWidth
	}
	if s.LineSpacing == 0 {
		s.LineSpacing = d.LineSpacing
	}
	s.MaxWidth = max(s.MaxWidth, 320)
	s.MinWidth = min(max(s.MinWidth, 240), s.MaxWidth)
	s.Padding = max(s.Padding, 0)
	s.LineSpacing = max(s.LineSpacing, 1)
	if s.Background == nil {
		s.Background = d.Background
	}
	if s.Foreground == nil {
		s.Foreground = d.Foreground
	}
	s.Title = s.Title.or(d.Title)
	s.Heading = s.Heading.or(d.Heading)
	s.Body = s.Body.or(d.Body)
	s.Code = s.Code.or(d.Code)
	return s
}

func (f Face) or(d Face) Face {
	if f.Font == nil {
		f.Font = d.Font
	}
	if f.Size <= 0 {
		f.Size = d.Size
	}
	return f
}

// contentWidth is the widest a line may be before it wraps.
func (s Style) contentWidth() int {
	return max(s.MaxWidth-2*s.Padding, 100)
}
