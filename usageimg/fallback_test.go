package usageimg

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/chiloven/lukosbot/usage"
)

// greek is what the code face is made to lack in these tests.
const greek = "αβγδ"

// codeJob returns a job whose code face lacks Greek, with the body font as
// its fallback.
func codeJob(t *testing.T) (j *job, p, fb *face) {
	t.Helper()
	j = &job{cache: NewCache(), style: DefaultStyle().normalize(), faces: make(map[Face]*face)}
	t.Cleanup(j.close)
	p, fb, err := j.facesFor(usage.Code)
	require.NoError(t, err)
	require.NotNil(t, fb)
	for _, c := range greek {
		j.cache.m.Store(glyphKey{family: p.font.Family, style: p.font.Style, size: p.size, r: c}, false)
		require.True(t, j.cache.Covers(fb.font, fb.size, c), "fallback lacks %q", c)
	}
	return j, p, fb
}

type span struct {
	Face string
	Text string
}

func spans(lines [][]run, p, fb *face) [][]span {
	r := make([][]span, 0, len(lines))
	for _, l := range lines {
		s := []span{}
		for _, x := range l {
			name := "other"
			switch x.f {
			case p:
				name = "primary"
			case fb:
				name = "fallback"
			}
			s = append(s, span{Face: name, Text: string(x.text)})
		}
		r = append(r, s)
	}
	return r
}

func TestPick(t *testing.T) {
	j, p, fb := codeJob(t)
	cases := []struct {
		name string
		c    rune
		want *face
	}{
		{"ascii", 'a', p},
		{"space", ' ', p},
		{"missing-from-primary", 'β', fb},
		{"missing-from-both", '日', p},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := j.pick(c.c, p, fb)
			if got != c.want {
				t.Errorf("wrong face for %q: want %s, got %s", c.c, c.want.font.Family, got.font.Family)
			}
		})
	}
	if got := j.pick('β', p, nil); got != p {
		t.Errorf("wrong face without fallback: want %s, got %s", p.font.Family, got.font.Family)
	}
}

func TestWrapRuns(t *testing.T) {
	j, p, fb := codeJob(t)
	cases := []struct {
		name string
		text string
		want [][]span
	}{
		{
			name: "primary",
			text: "abc",
			want: [][]span{{{"primary", "abc"}}},
		},
		{
			name: "fallback-run",
			text: "ab αβ cd",
			want: [][]span{{{"primary", "ab "}, {"fallback", "αβ"}, {"primary", " cd"}}},
		},
		{
			name: "leading-fallback",
			text: "γδx",
			want: [][]span{{{"fallback", "γδ"}, {"primary", "x"}}},
		},
		{
			name: "uncovered-stays-primary",
			text: "a日本b",
			want: [][]span{{{"primary", "a日本b"}}},
		},
		{
			name: "empty",
			text: "",
			want: [][]span{{}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := spans(j.wrap(c.text, p, fb, fixed.I(10000)), p, fb)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong runs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWrapBoundaries(t *testing.T) {
	j, p, fb := codeJob(t)
	cases := []struct {
		name  string
		text  string
		limit fixed.Int26_6
		want  [][]span
	}{
		{
			name:  "break-after-fallback",
			text:  "abαβcd",
			limit: font.MeasureString(p.ff, "ab") + font.MeasureString(fb.ff, "αβ"),
			want: [][]span{
				{{"primary", "ab"}, {"fallback", "αβ"}},
				{{"primary", "cd"}},
			},
		},
		{
			name:  "break-into-fallback",
			text:  "abα",
			limit: font.MeasureString(p.ff, "ab"),
			want: [][]span{
				{{"primary", "ab"}},
				{{"fallback", "α"}},
			},
		},
		{
			name:  "space-dropped",
			text:  "ab cd",
			limit: font.MeasureString(p.ff, "ab"),
			want: [][]span{
				{{"primary", "ab"}},
				{{"primary", "cd"}},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := spans(j.wrap(c.text, p, fb, c.limit), p, fb)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong lines (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWrapWidth(t *testing.T) {
	j, p, fb := codeJob(t)
	width := j.style.contentWidth()
	text := strings.Repeat("code αβγ mixed 日本 δ ", 40)
	lines := j.wrap(text, p, fb, fixed.I(width))
	if len(lines) < 2 {
		t.Fatalf("text did not wrap: %d lines", len(lines))
	}
	for i, l := range lines {
		if w := measure(l); w > width {
			t.Errorf("line %d too wide: want at most %d, got %d", i, width, w)
		}
		for k := 1; k < len(l); k++ {
			if l[k].f == l[k-1].f {
				t.Errorf("line %d has adjacent runs in the same face at %d", i, k)
			}
		}
	}
}
