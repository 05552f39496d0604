// Package usage describes commands for help output and renders those
// descriptions as styled lines.
package usage

import (
	"slices"
	"strings"

	"github.com/chiloven/lukosbot/grammar"
)

// Node is the documentation for a command or subcommand.
// A Node returned from [Builder.Build] must not be modified.
type Node struct {
	Name        string
	Description string
	// Syntax lists the accepted forms after the command path.
	Syntax   []Syntax
	Params   []Entry
	Options  []Entry
	Examples []string
	Notes    []string
	Children []*Node
}

// Syntax is one accepted form of a command.
type Syntax struct {
	Description string
	// Items is the syntax following the command path.
	Items []grammar.Node
}

// Tail renders the syntax items.
func (s Syntax) Tail() string {
	return grammar.Join(s.Items)
}

// Entry is a documented parameter or option.
type Entry struct {
	Token       grammar.Node
	Description string
}

// Child returns the direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) clone() *Node {
	r := &Node{
		Name:        n.Name,
		Description: n.Description,
		Syntax:      make([]Syntax, len(n.Syntax)),
		Params:      slices.Clone(n.Params),
		Options:     slices.Clone(n.Options),
		Examples:    slices.Clone(n.Examples),
		Notes:       slices.Clone(n.Notes),
		Children:    make([]*Node, len(n.Children)),
	}
	for i, s := range n.Syntax {
		r.Syntax[i] = Syntax{Description: s.Description, Items: slices.Clone(s.Items)}
	}
	for i, c := range n.Children {
		r.Children[i] = c.clone()
	}
	return r
}

// Builder accumulates a Node.
type Builder struct {
	n Node
}

// Root starts a builder for a node with the given name.
// Panics if name is blank.
func Root(name string) *Builder {
	name = strings.TrimSpace(name)
	if name == "" {
		panic("usage: blank node name")
	}
	return &Builder{n: Node{Name: name}}
}

// Description sets the node's description.
func (b *Builder) Description(s string) *Builder {
	b.n.Description = strings.TrimSpace(s)
	return b
}

// Syntax adds an accepted form. The items follow the command path.
func (b *Builder) Syntax(desc string, items ...grammar.Node) *Builder {
	items = slices.DeleteFunc(slices.Clone(items), func(n grammar.Node) bool { return n == nil })
	b.n.Syntax = append(b.n.Syntax, Syntax{Description: strings.TrimSpace(desc), Items: items})
	return b
}

// Param documents a parameter named like an argument.
func (b *Builder) Param(name, desc string) *Builder {
	return b.ParamNode(grammar.Arg(name), desc)
}

// ParamNode documents a parameter with an arbitrary token.
func (b *Builder) ParamNode(tok grammar.Node, desc string) *Builder {
	if tok == nil {
		panic("usage: nil parameter token")
	}
	b.n.Params = append(b.n.Params, Entry{Token: tok, Description: strings.TrimSpace(desc)})
	return b
}

// Option documents a literal flag.
func (b *Builder) Option(flag, desc string) *Builder {
	return b.OptionNode(grammar.Lit(flag), desc)
}

// OptionNode documents an option with an arbitrary token.
func (b *Builder) OptionNode(tok grammar.Node, desc string) *Builder {
	if tok == nil {
		panic("usage: nil option token")
	}
	b.n.Options = append(b.n.Options, Entry{Token: tok, Description: strings.TrimSpace(desc)})
	return b
}

// Example adds example invocations. Blank examples are skipped.
// Examples are usually written without the command prefix.
func (b *Builder) Example(lines ...string) *Builder {
	b.n.Examples = appendNonblank(b.n.Examples, lines)
	return b
}

// Note adds free-form notes. Blank notes are skipped.
func (b *Builder) Note(lines ...string) *Builder {
	b.n.Notes = appendNonblank(b.n.Notes, lines)
	return b
}

// Child adds an already built subcommand.
func (b *Builder) Child(n *Node) *Builder {
	if n == nil {
		panic("usage: nil child")
	}
	b.n.Children = append(b.n.Children, n.clone())
	return b
}

// Subcommand builds and adds a subcommand.
// f may be nil when the subcommand has nothing beyond its description.
func (b *Builder) Subcommand(name, desc string, f func(*Builder)) *Builder {
	c := Root(name).Description(desc)
	if f != nil {
		f(c)
	}
	b.n.Children = append(b.n.Children, c.Build())
	return b
}

// Build returns the finished node. The builder may continue to be used
// without affecting nodes it has already built.
func (b *Builder) Build() *Node {
	return b.n.clone()
}

func appendNonblank(dst, src []string) []string {
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
