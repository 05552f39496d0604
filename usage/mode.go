package usage

import (
	"strings"
	"unicode/utf8"
)

// Mode selects how usage is delivered.
type Mode int

const (
	// ModeAuto sends an image only when the text is long.
	ModeAuto Mode = iota
	ModeText
	ModeImage
)

// Thresholds past which ModeAuto prefers an image.
const (
	AutoImageChars = 1400
	AutoImageLines = 32
)

// ParseMode interprets a user-supplied mode word.
// Unrecognized words select ModeAuto.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "img", "image", "pic", "png":
		return ModeImage
	case "text", "txt", "raw":
		return ModeText
	default:
		return ModeAuto
	}
}

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeImage:
		return "img"
	default:
		return "auto"
	}
}

// WantsImage reports whether usage in r should be sent as an image.
func (m Mode) WantsImage(r Result) bool {
	switch m {
	case ModeImage:
		return true
	case ModeText:
		return false
	}
	s := r.PlainText()
	return utf8.RuneCountInString(s) > AutoImageChars || strings.Count(s, "\n")+1 > AutoImageLines
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using [ParseMode].
func (m *Mode) UnmarshalText(b []byte) error {
	*m = ParseMode(string(b))
	return nil
}
