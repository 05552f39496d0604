// Package usageimg draws rendered usage lines to PNG images.
package usageimg

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/chiloven/lukosbot/tpool"
	"github.com/chiloven/lukosbot/usage"
)

// Image is an encoded image ready to send.
type Image struct {
	Filename string
	Bytes    []byte
	MIME     string
}

// Renderer draws usage. It is safe for concurrent use as long as its fields
// are not modified.
type Renderer struct {
	// Cache is the shared glyph coverage cache.
	// If nil, each render uses its own.
	Cache *Cache
	// Style is the image style. Unset fields take default values.
	Style Style
}

var encbufs tpool.Pool[*png.EncoderBuffer]

// Render draws a usage result.
func (r *Renderer) Render(base string, res usage.Result) (*Image, error) {
	return r.RenderLinesPNG(base, res.Lines())
}

// RenderLinesPNG lays out and draws lines. The image is named from base
// after sanitizing it with [SanitizeFilenameBase].
func (r *Renderer) RenderLinesPNG(base string, lines []usage.Line) (*Image, error) {
	cache := r.Cache
	if cache == nil {
		cache = NewCache()
	}
	j := job{
		cache: cache,
		style: r.Style.normalize(),
		faces: make(map[Face]*face),
	}
	defer j.close()
	img, err := j.draw(lines)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	enc := png.Encoder{BufferPool: &encbufs}
	if err := enc.Encode(&b, img); err != nil {
		return nil, fmt.Errorf("couldn't encode usage image: %w", err)
	}
	return &Image{
		Filename: SanitizeFilenameBase(base) + ".png",
		Bytes:    b.Bytes(),
		MIME:     "image/png",
	}, nil
}

// run is a span of text drawn with one face.
type run struct {
	f    *face
	text []byte
}

type layoutLine struct {
	blank   bool
	height  int
	width   int
	primary *face
	runs    []run
}

// job holds the faces for one render. Faces are not safe for concurrent use,
// so they are never shared between renders.
type job struct {
	cache *Cache
	style Style
	faces map[Face]*face
}

func (j *job) close() {
	for _, f := range j.faces {
		f.ff.Close()
	}
}

func (j *job) face(f Face) (*face, error) {
	if r := j.faces[f]; r != nil {
		return r, nil
	}
	r, err := newFace(f.Font, f.Size)
	if err != nil {
		return nil, err
	}
	j.faces[f] = r
	return r, nil
}

func (j *job) primary(k usage.Kind) Face {
	switch k {
	case usage.Title:
		return j.style.Title
	case usage.Heading:
		return j.style.Heading
	case usage.Code:
		return j.style.Code
	default:
		return j.style.Body
	}
}

// facesFor returns the primary and fallback faces for a kind of line.
// The fallback is nil when it would be the same as the primary.
func (j *job) facesFor(k usage.Kind) (p, fb *face, err error) {
	pf := j.primary(k)
	p, err = j.face(pf)
	if err != nil {
		return nil, nil, err
	}
	ff := j.style.Fallback
	if ff == nil {
		ff = j.style.Body.Font
	}
	if ff == pf.Font {
		return p, nil, nil
	}
	fb, err = j.face(Face{Font: ff, Size: pf.Size})
	if err != nil {
		return nil, nil, err
	}
	return p, fb, nil
}

// pick chooses the face to draw c. It prefers the primary, then the
// fallback, and uses the primary when neither has the glyph.
func (j *job) pick(c rune, p, fb *face) *face {
	if j.cache.Covers(p.font, p.size, c) {
		return p
	}
	if fb != nil && j.cache.Covers(fb.font, fb.size, c) {
		return fb
	}
	return p
}

func (j *job) layout(lines []usage.Line) ([]layoutLine, error) {
	body, err := j.face(j.style.Body)
	if err != nil {
		return nil, err
	}
	blank := int(math.Round(body.height() * j.style.LineSpacing * 0.6))
	limit := fixed.I(j.style.contentWidth())
	var out []layoutLine
	for _, l := range lines {
		text := strings.ReplaceAll(l.Text, "\t", "    ")
		if l.Kind == usage.Blank || strings.TrimSpace(text) == "" {
			out = append(out, layoutLine{blank: true, height: blank})
			continue
		}
		p, fb, err := j.facesFor(l.Kind)
		if err != nil {
			return nil, err
		}
		h := int(math.Round(p.height() * j.style.LineSpacing))
		for _, seg := range strings.Split(text, "\n") {
			for _, runs := range j.wrap(seg, p, fb, limit) {
				out = append(out, layoutLine{height: h, width: measure(runs), primary: p, runs: runs})
			}
		}
	}
	return out, nil
}

// wrap splits text into lines no wider than limit, breaking before the
// first character that does not fit. A space that would overflow is
// dropped. A character wider than the limit still gets a line of its own.
func (j *job) wrap(text string, p, fb *face, limit fixed.Int26_6) [][]run {
	var (
		out  [][]run
		cur  []run
		w    fixed.Int26_6
		prev rune = -1
		pf   *face
	)
	for _, c := range text {
		f := j.pick(c, p, fb)
		adv, _ := f.ff.GlyphAdvance(c)
		if f == pf && prev >= 0 {
			adv += f.ff.Kern(prev, c)
		}
		if w+adv > limit && len(cur) > 0 {
			out = append(out, cur)
			cur, w, prev, pf = nil, 0, -1, nil
			if c == ' ' {
				continue
			}
			adv, _ = f.ff.GlyphAdvance(c)
		}
		cur = appendRune(cur, f, c)
		w += adv
		prev, pf = c, f
	}
	if len(cur) > 0 || len(out) == 0 {
		out = append(out, cur)
	}
	return out
}

func appendRune(runs []run, f *face, c rune) []run {
	if n := len(runs); n > 0 && runs[n-1].f == f {
		runs[n-1].text = utf8.AppendRune(runs[n-1].text, c)
		return runs
	}
	return append(runs, run{f: f, text: utf8.AppendRune(nil, c)})
}

func measure(runs []run) int {
	var w fixed.Int26_6
	for _, r := range runs {
		w += font.MeasureBytes(r.f.ff, r.text)
	}
	return w.Ceil()
}

func (j *job) draw(lines []usage.Line) (*image.RGBA, error) {
	ls, err := j.layout(lines)
	if err != nil {
		return nil, err
	}
	s := j.style
	widest, total := 0, 2*s.Padding
	for _, l := range ls {
		widest = max(widest, l.width)
		total += l.height
	}
	width := min(s.MaxWidth, max(s.MinWidth, widest+2*s.Padding))
	height := max(MinHeight, total)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(s.Background), image.Point{}, draw.Src)
	d := font.Drawer{Dst: img, Src: image.NewUniform(s.Foreground)}
	y := s.Padding
	for _, l := range ls {
		if l.blank {
			y += l.height
			continue
		}
		asc := l.primary.ascent()
		y += asc
		d.Dot = fixed.P(s.Padding, y)
		for _, r := range l.runs {
			d.Face = r.f.ff
			d.DrawBytes(r.text)
		}
		y += l.height - asc
	}
	return img, nil
}

// SanitizeFilenameBase replaces characters outside [A-Za-z0-9._-] with
// underscores and truncates the result to 64 characters. If nothing usable
// remains, the result is "usage".
func SanitizeFilenameBase(s string) string {
	var b strings.Builder
	valid := false
	for _, c := range strings.TrimSpace(s) {
		if b.Len() >= 64 {
			break
		}
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '.', c == '_', c == '-':
			b.WriteRune(c)
			valid = true
		default:
			b.WriteByte('_')
		}
	}
	if !valid {
		return "usage"
	}
	return b.String()
}
