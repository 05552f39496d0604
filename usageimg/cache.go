package usageimg

import (
	"golang.org/x/image/font/sfnt"

	"github.com/chiloven/lukosbot/syncmap"
	"github.com/chiloven/lukosbot/tpool"
)

type glyphKey struct {
	family string
	style  string
	size   float64
	r      rune
}

// Cache records whether fonts can draw characters.
// One Cache is meant to be created at startup and shared by every renderer.
// It is safe for concurrent use. Entries never go stale.
type Cache struct {
	m    *syncmap.Map[glyphKey, bool]
	bufs tpool.Pool[*sfnt.Buffer]
}

// NewCache creates an empty coverage cache.
func NewCache() *Cache {
	return &Cache{m: syncmap.New[glyphKey, bool]()}
}

// Covers reports whether f has a glyph for r.
func (c *Cache) Covers(f *Font, size float64, r rune) bool {
	k := glyphKey{family: f.Family, style: f.Style, size: size, r: r}
	if ok, hit := c.m.Load(k); hit {
		return ok
	}
	b := c.bufs.Get()
	if b == nil {
		b = new(sfnt.Buffer)
	}
	x, err := f.f.GlyphIndex(b, r)
	c.bufs.Put(b)
	ok := err == nil && x != 0
	c.m.Store(k, ok)
	return ok
}

// Len returns the number of cached coverage facts.
func (c *Cache) Len() int {
	return c.m.Len()
}
