package message

import (
	"strings"
)

// Part is one element of a message: a [TextPart], [Image], or [File].
type Part interface {
	part()
}

// TextPart is plain message text.
type TextPart struct {
	Text string
}

// Image is an image attachment.
type Image struct {
	Ref     MediaRef
	Caption string
	// Name is the file name to present, if any.
	Name string
	// MIME is the media type, if known.
	MIME string
}

// File is a generic file attachment.
type File struct {
	Ref     MediaRef
	Name    string
	// Size is the size in bytes, or zero if unknown.
	Size    int64
	Caption string
	MIME    string
}

func (TextPart) part() {}
func (Image) part()    {}
func (File) part()     {}

// MediaRef locates binary content: a [URLRef], [PlatformFileRef], or
// [BytesRef].
type MediaRef interface {
	mediaRef()
}

// URLRef is media available at a URL.
type URLRef struct {
	URL string
}

// PlatformFileRef is media already stored by a platform, referenced by that
// platform's file ID.
type PlatformFileRef struct {
	Platform Platform
	FileID   string
}

// BytesRef is media held in memory.
type BytesRef struct {
	Name  string
	Bytes []byte
	MIME  string
}

func (URLRef) mediaRef()          {}
func (PlatformFileRef) mediaRef() {}
func (BytesRef) mediaRef()        {}

// ImageBytes creates an image part from in-memory bytes.
func ImageBytes(name string, b []byte, mime string) Image {
	return Image{
		Ref:  BytesRef{Name: name, Bytes: b, MIME: mime},
		Name: name,
		MIME: mime,
	}
}

// FileBytes creates a file part from in-memory bytes.
func FileBytes(name string, b []byte, mime string) File {
	return File{
		Ref:  BytesRef{Name: name, Bytes: b, MIME: mime},
		Name: name,
		Size: int64(len(b)),
		MIME: mime,
	}
}

// PrimaryText returns the first non-blank text part. If there is none, it
// returns the first non-blank caption of an image or file. The result is
// trimmed.
func PrimaryText(parts []Part) string {
	for _, p := range parts {
		if t, ok := p.(TextPart); ok {
			if s := strings.TrimSpace(t.Text); s != "" {
				return s
			}
		}
	}
	for _, p := range parts {
		if s := strings.TrimSpace(caption(p)); s != "" {
			return s
		}
	}
	return ""
}

// AllText joins the text of every text part and every caption with newlines.
func AllText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		var s string
		switch p := p.(type) {
		case TextPart:
			s = p.Text
		case Image:
			s = p.Caption
		case File:
			s = p.Caption
		}
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	return b.String()
}

func caption(p Part) string {
	switch p := p.(type) {
	case Image:
		return p.Caption
	case File:
		return p.Caption
	default:
		return ""
	}
}

// Kind returns a short lowercase name for a part's variant.
func Kind(p Part) string {
	switch p.(type) {
	case TextPart:
		return "text"
	case Image:
		return "image"
	case File:
		return "file"
	default:
		panic("message: unknown part type")
	}
}
