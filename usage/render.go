package usage

import (
	"slices"
	"strings"

	"github.com/chiloven/lukosbot/grammar"
)

// Kind is the role of a rendered line.
type Kind int

const (
	Title Kind = iota
	Heading
	Text
	Code
	Blank
)

func (k Kind) String() string {
	switch k {
	case Title:
		return "title"
	case Heading:
		return "heading"
	case Text:
		return "text"
	case Code:
		return "code"
	case Blank:
		return "blank"
	default:
		return "Kind(?)"
	}
}

// Line is one line of rendered usage.
type Line struct {
	Kind Kind
	// Text is the plain text of the line.
	Text string
	// Markdown is the line with inline markup.
	// It is the same as Text when markup is disabled.
	Markdown string
}

// Options controls rendering.
type Options struct {
	// Prefix is the command prefix written before invocations.
	Prefix string
	// Markdown enables inline markup in [Line.Markdown].
	Markdown bool
	// Header emits a title line and, with DescriptionInHeader, the command's
	// description.
	Header              bool
	DescriptionInHeader bool

	Usage       bool
	Params      bool
	Options     bool
	Examples    bool
	Notes       bool
	Subcommands bool

	// MaxDepth limits how deep subcommands are walked. The root is depth 0.
	MaxDepth int
	// AutoPrefixExamples adds Prefix to examples that lack it.
	AutoPrefixExamples bool
}

// ForHelp returns options for a full help page.
func ForHelp(prefix string) Options {
	return Options{
		Prefix:              prefix,
		Header:              true,
		DescriptionInHeader: true,
		Usage:               true,
		Params:              true,
		Options:             true,
		Examples:            true,
		Notes:               true,
		Subcommands:         true,
		MaxDepth:            8,
		AutoPrefixExamples:  true,
	}
}

// ForCommand returns options for usage shown in response to a command,
// where the title would repeat what the user just typed.
func ForCommand(prefix string) Options {
	o := ForHelp(prefix)
	o.Header = false
	o.DescriptionInHeader = false
	o.MaxDepth = 6
	return o
}

// Result is rendered usage.
type Result struct {
	lines []Line
}

// Lines returns the rendered lines.
func (r Result) Lines() []Line {
	return slices.Clone(r.lines)
}

// Len returns the number of lines.
func (r Result) Len() int {
	return len(r.lines)
}

// PlainText joins the plain text of each line with newlines.
func (r Result) PlainText() string {
	return r.join(func(l Line) string { return l.Text })
}

// Markdown joins the markup of each line with newlines.
func (r Result) Markdown() string {
	return r.join(func(l Line) string { return l.Markdown })
}

func (r Result) join(f func(Line) string) string {
	var b strings.Builder
	for i, l := range r.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f(l))
	}
	return strings.TrimSpace(b.String())
}

// at is a node along with the command path leading to it.
type at struct {
	path []string
	node *Node
}

// walk collects n and its descendants to depth limit, in preorder.
func walk(n *Node, path []string, depth, limit int, out []at) []at {
	if n == nil || depth > limit {
		return out
	}
	out = append(out, at{path: path, node: n})
	for _, c := range n.Children {
		out = walk(c, append(slices.Clip(path), c.Name), depth+1, limit, out)
	}
	return out
}

type renderer struct {
	opts  Options
	lines []Line
}

func (r *renderer) add(k Kind, text, md string) {
	if !r.opts.Markdown {
		md = text
	}
	r.lines = append(r.lines, Line{Kind: k, Text: text, Markdown: md})
}

func (r *renderer) blank() {
	r.lines = append(r.lines, Line{Kind: Blank})
}

func (r *renderer) heading(s string) {
	r.add(Heading, s, "**"+s+"**")
}

// invoke writes a command invocation followed by an optional comment.
func (r *renderer) invoke(k Kind, inv, desc string) {
	text, md := inv, "`"+inv+"`"
	if desc != "" {
		text += "  # " + desc
		md += "  # " + desc
	}
	r.add(k, text, md)
}

func (r *renderer) bullet(key, desc string) {
	if desc == "" {
		r.add(Text, "• "+key, "• `"+key+"`")
		return
	}
	r.add(Text, "• "+key+" — "+desc, "• `"+key+"` — "+desc)
}

func (r *renderer) under(path []string) {
	if len(path) > 1 {
		r.add(Text, "Under "+invocation(r.opts.Prefix, path, "")+":", "Under `"+invocation(r.opts.Prefix, path, "")+"`:")
	}
}

// entries renders one section of entries collected from every node.
func (r *renderer) entries(title string, nodes []at, get func(*Node) []Entry) {
	nodes = slices.DeleteFunc(slices.Clone(nodes), func(a at) bool { return len(get(a.node)) == 0 })
	if len(nodes) == 0 {
		return
	}
	r.heading(title)
	for _, a := range nodes {
		r.under(a.path)
		for _, e := range get(a.node) {
			r.bullet(grammar.String(e.Token), e.Description)
		}
	}
	r.blank()
}

// Render renders usage for n. The output depends only on n and opts.
func Render(n *Node, opts Options) Result {
	if n == nil {
		return Result{}
	}
	r := renderer{opts: opts}
	root := []string{n.Name}
	nodes := walk(n, root, 0, opts.MaxDepth, nil)
	if opts.Header {
		t := "Command: " + opts.Prefix + n.Name
		r.add(Title, t, "**Command: `"+opts.Prefix+n.Name+"`**")
		if opts.DescriptionInHeader && n.Description != "" {
			r.add(Text, n.Description, n.Description)
		}
		r.blank()
	}
	if opts.Usage {
		r.heading("Usage:")
		var found bool
		for _, a := range nodes {
			for _, s := range a.node.Syntax {
				r.invoke(Text, invocation(opts.Prefix, a.path, s.Tail()), s.Description)
				found = true
			}
		}
		if !found {
			r.invoke(Text, invocation(opts.Prefix, root, ""), "")
		}
		r.blank()
	}
	if opts.Params {
		r.entries("Parameters:", nodes, func(n *Node) []Entry { return n.Params })
	}
	if opts.Options {
		r.entries("Options:", nodes, func(n *Node) []Entry { return n.Options })
	}
	if opts.Examples && slices.ContainsFunc(nodes, func(a at) bool { return len(a.node.Examples) > 0 }) {
		r.heading("Examples:")
		for _, a := range nodes {
			if len(a.node.Examples) == 0 {
				continue
			}
			r.under(a.path)
			for _, ex := range a.node.Examples {
				ex = example(opts, ex)
				r.add(Code, ex, "`"+ex+"`")
			}
		}
		r.blank()
	}
	if opts.Notes && slices.ContainsFunc(nodes, func(a at) bool { return len(a.node.Notes) > 0 }) {
		r.heading("Notes:")
		for _, a := range nodes {
			if len(a.node.Notes) == 0 {
				continue
			}
			r.under(a.path)
			for _, s := range a.node.Notes {
				r.add(Text, "• "+s, "• "+s)
			}
		}
		r.blank()
	}
	if opts.Subcommands && opts.MaxDepth > 0 && len(n.Children) > 0 {
		r.heading("Subcommands:")
		for _, c := range n.Children {
			r.invoke(Text, invocation(opts.Prefix, []string{n.Name, c.Name}, ""), c.Description)
		}
		r.blank()
	}
	for len(r.lines) > 0 && r.lines[len(r.lines)-1].Kind == Blank {
		r.lines = r.lines[:len(r.lines)-1]
	}
	return Result{lines: r.lines}
}

// invocation joins the prefix, command path, and syntax tail.
func invocation(prefix string, path []string, tail string) string {
	s := prefix + strings.Join(path, " ")
	if tail != "" {
		s += " " + tail
	}
	return strings.TrimSpace(s)
}

func example(opts Options, ex string) string {
	ex = strings.TrimSpace(ex)
	if opts.AutoPrefixExamples && opts.Prefix != "" && !strings.HasPrefix(ex, opts.Prefix) {
		ex = opts.Prefix + ex
	}
	return ex
}
