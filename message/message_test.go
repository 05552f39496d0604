package message_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chiloven/lukosbot/message"
)

func TestChatKey(t *testing.T) {
	cases := []struct {
		name string
		addr message.Address
		key  string
	}{
		{
			name: "group",
			addr: message.Address{Platform: message.OneBot, ChatID: 12345, Group: true},
			key:  "ONEBOT:g:12345",
		},
		{
			name: "private",
			addr: message.Address{Platform: message.Telegram, ChatID: 777},
			key:  "TELEGRAM:p:777",
		},
		{
			name: "negative",
			addr: message.Address{Platform: message.Telegram, ChatID: -1001234, Group: true},
			key:  "TELEGRAM:g:-1001234",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			k := c.addr.ChatKey()
			if k != c.key {
				t.Errorf("wrong key: want %q, got %q", c.key, k)
			}
			a, err := message.ParseChatKey(k)
			if err != nil {
				t.Fatalf("couldn't parse %q: %v", k, err)
			}
			if a != c.addr {
				t.Errorf("wrong address: want %+v, got %+v", c.addr, a)
			}
		})
	}
}

func TestParseChatKeyBad(t *testing.T) {
	bad := []string{"", "DISCORD", "DISCORD:x:1", "DISCORD:g:", "DISCORD:g:one", ":g:1"}
	for _, k := range bad {
		if a, err := message.ParseChatKey(k); err == nil {
			t.Errorf("parsing %q should have failed, got %+v", k, a)
		}
	}
}

func TestPrimaryText(t *testing.T) {
	cases := []struct {
		name  string
		parts []message.Part
		want  string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name:  "text",
			parts: []message.Part{message.TextPart{Text: "  /help  "}},
			want:  "/help",
		},
		{
			name: "skip-blank",
			parts: []message.Part{
				message.TextPart{Text: "   "},
				message.TextPart{Text: "second"},
			},
			want: "second",
		},
		{
			name: "caption",
			parts: []message.Part{
				message.Image{Ref: message.URLRef{URL: "https://example.com/a.png"}, Caption: "/echo hi"},
			},
			want: "/echo hi",
		},
		{
			name: "text-before-caption",
			parts: []message.Part{
				message.File{Ref: message.PlatformFileRef{Platform: message.Telegram, FileID: "x"}, Caption: "cap"},
				message.TextPart{Text: "body"},
			},
			want: "body",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := message.PrimaryText(c.parts)
			if got != c.want {
				t.Errorf("wrong primary text: want %q, got %q", c.want, got)
			}
		})
	}
}

func TestAllText(t *testing.T) {
	parts := []message.Part{
		message.TextPart{Text: "one"},
		message.ImageBytes("a.png", []byte{1}, "image/png"),
		message.Image{Ref: message.URLRef{URL: "u"}, Caption: "two"},
		message.TextPart{Text: ""},
		message.File{Ref: message.URLRef{URL: "v"}, Caption: "three"},
	}
	want := "one\ntwo\nthree"
	if got := message.AllText(parts); got != want {
		t.Errorf("wrong text: want %q, got %q", want, got)
	}
}

func TestWith(t *testing.T) {
	addr := message.Address{Platform: message.Discord, ChatID: 1, Group: true}
	base := message.Text(addr, "a")
	// Give the base slice spare capacity so that a careless append would
	// write through to it.
	base.Parts = append(make([]message.Part, 0, 8), base.Parts...)
	x := base.With(message.TextPart{Text: "x"})
	y := base.With(message.TextPart{Text: "y"})
	if len(base.Parts) != 1 {
		t.Errorf("base modified: %v", base.Parts)
	}
	want := []message.Part{message.TextPart{Text: "a"}, message.TextPart{Text: "x"}}
	if diff := cmp.Diff(want, x.Parts); diff != "" {
		t.Errorf("wrong parts for x (-want +got):\n%s", diff)
	}
	want = []message.Part{message.TextPart{Text: "a"}, message.TextPart{Text: "y"}}
	if diff := cmp.Diff(want, y.Parts); diff != "" {
		t.Errorf("wrong parts for y (-want +got):\n%s", diff)
	}
	if x.Hints != message.DefaultHints() {
		t.Errorf("wrong hints: %+v", x.Hints)
	}
}

func TestFormat(t *testing.T) {
	addr := message.Address{Platform: message.Console}
	m := message.Format(addr, "  rolled %d of %s  ", 3, "d6")
	if got := m.Text(); got != "rolled 3 of d6" {
		t.Errorf("wrong text: want %q, got %q", "rolled 3 of d6", got)
	}
	if m.Addr != addr {
		t.Errorf("wrong address: want %v, got %v", addr, m.Addr)
	}
}

func TestBytesParts(t *testing.T) {
	img := message.ImageBytes("usage.png", []byte("png"), "image/png")
	ref, ok := img.Ref.(message.BytesRef)
	if !ok {
		t.Fatalf("wrong ref type %T", img.Ref)
	}
	if ref.Name != "usage.png" || ref.MIME != "image/png" || string(ref.Bytes) != "png" {
		t.Errorf("wrong ref: %+v", ref)
	}
	f := message.FileBytes("log.txt", []byte("hello"), "text/plain")
	if f.Size != 5 {
		t.Errorf("wrong size: want 5, got %d", f.Size)
	}
	for _, p := range []message.Part{message.TextPart{}, img, f} {
		if message.Kind(p) == "" {
			t.Errorf("no kind for %T", p)
		}
	}
}
