package usage_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/usage"
)

func prefNode() *usage.Node {
	return usage.Root("pref").
		Description("Manage preferences").
		Syntax("Show all preferences").
		Syntax("Show one", grammar.Lit("get"), grammar.Arg("name")).
		Param("name", "preference name").
		Option("-g", "global").
		Example("pref get usage.mode", "/pref clear usage.mode", "  ").
		Note("Scopes: chat, user, global").
		Subcommand("set", "Set a value", func(b *usage.Builder) {
			b.Syntax("", grammar.Arg("name"), grammar.Arg("value")).
				Param("value", "new value")
		}).
		Build()
}

func line(k usage.Kind, s string) usage.Line {
	return usage.Line{Kind: k, Text: s, Markdown: s}
}

func TestRenderHelp(t *testing.T) {
	want := []usage.Line{
		line(usage.Title, "Command: /pref"),
		line(usage.Text, "Manage preferences"),
		line(usage.Blank, ""),
		line(usage.Heading, "Usage:"),
		line(usage.Text, "/pref  # Show all preferences"),
		line(usage.Text, "/pref get <name>  # Show one"),
		line(usage.Text, "/pref set <name> <value>"),
		line(usage.Blank, ""),
		line(usage.Heading, "Parameters:"),
		line(usage.Text, "• <name> — preference name"),
		line(usage.Text, "Under /pref set:"),
		line(usage.Text, "• <value> — new value"),
		line(usage.Blank, ""),
		line(usage.Heading, "Options:"),
		line(usage.Text, "• -g — global"),
		line(usage.Blank, ""),
		line(usage.Heading, "Examples:"),
		line(usage.Code, "/pref get usage.mode"),
		line(usage.Code, "/pref clear usage.mode"),
		line(usage.Blank, ""),
		line(usage.Heading, "Notes:"),
		line(usage.Text, "• Scopes: chat, user, global"),
		line(usage.Blank, ""),
		line(usage.Heading, "Subcommands:"),
		line(usage.Text, "/pref set  # Set a value"),
	}
	got := usage.Render(prefNode(), usage.ForHelp("/")).Lines()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong lines (-want +got):\n%s", diff)
	}
}

func TestRenderDeterministic(t *testing.T) {
	n := prefNode()
	opts := usage.ForHelp("!")
	a := usage.Render(n, opts).Lines()
	for range 10 {
		b := usage.Render(n, opts).Lines()
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("render changed between calls (-first +later):\n%s", diff)
		}
	}
}

func TestRenderBare(t *testing.T) {
	n := usage.Root("ping").Description("Check liveness").Build()
	got := usage.Render(n, usage.ForCommand("/")).PlainText()
	want := "Usage:\n/ping"
	if got != want {
		t.Errorf("wrong text: want %q, got %q", want, got)
	}
}

func TestRenderDepth(t *testing.T) {
	n := usage.Root("a").
		Subcommand("b", "", func(b *usage.Builder) {
			b.Syntax("", grammar.Arg("x"))
			b.Subcommand("c", "", func(b *usage.Builder) {
				b.Syntax("", grammar.Arg("y"))
			})
		}).
		Build()
	cases := []struct {
		name  string
		depth int
		want  string
	}{
		{"root", 0, "Usage:\na"},
		{"one", 1, "Usage:\na b <x>\n\nSubcommands:\na b"},
		{"all", 2, "Usage:\na b <x>\na b c <y>\n\nSubcommands:\na b"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := usage.ForCommand("")
			opts.MaxDepth = c.depth
			got := usage.Render(n, opts).PlainText()
			if got != c.want {
				t.Errorf("wrong text: want %q, got %q", c.want, got)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	opts := usage.ForHelp("/")
	opts.Markdown = true
	r := usage.Render(prefNode(), opts)
	md := r.Markdown()
	for _, want := range []string{"**Command: `/pref`**", "**Usage:**", "`/pref get <name>`  # Show one", "• `<name>` — preference name", "`/pref get usage.mode`"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(r.PlainText(), "`") {
		t.Errorf("plain text has markup:\n%s", r.PlainText())
	}
}

func TestBuildIsolated(t *testing.T) {
	b := usage.Root("x").Example("one")
	first := b.Build()
	b.Example("two")
	second := b.Build()
	if len(first.Examples) != 1 {
		t.Errorf("built node changed with its builder: %q", first.Examples)
	}
	if len(second.Examples) != 2 {
		t.Errorf("wrong examples: %q", second.Examples)
	}
	if second.Child("nope") != nil {
		t.Error("found nonexistent child")
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want usage.Mode
	}{
		{"img", usage.ModeImage},
		{"IMAGE", usage.ModeImage},
		{" pic ", usage.ModeImage},
		{"png", usage.ModeImage},
		{"text", usage.ModeText},
		{"txt", usage.ModeText},
		{"raw", usage.ModeText},
		{"", usage.ModeAuto},
		{"auto", usage.ModeAuto},
		{"bogus", usage.ModeAuto},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got := usage.ParseMode(c.in)
			if got != c.want {
				t.Errorf("wrong mode: want %v, got %v", c.want, got)
			}
		})
	}
}

func TestWantsImage(t *testing.T) {
	short := usage.Render(prefNode(), usage.ForHelp("/"))
	b := usage.Root("long")
	for range usage.AutoImageLines {
		b.Note("note")
	}
	long := usage.Render(b.Build(), usage.ForHelp("/"))
	wide := usage.Render(usage.Root("wide").Description(strings.Repeat("x", usage.AutoImageChars)).Build(), usage.ForHelp("/"))
	cases := []struct {
		name string
		mode usage.Mode
		r    usage.Result
		want bool
	}{
		{"image", usage.ModeImage, short, true},
		{"text", usage.ModeText, long, false},
		{"auto-short", usage.ModeAuto, short, false},
		{"auto-lines", usage.ModeAuto, long, true},
		{"auto-chars", usage.ModeAuto, wide, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.mode.WantsImage(c.r); got != c.want {
				t.Errorf("wrong choice: want %t, got %t", c.want, got)
			}
		})
	}
}
