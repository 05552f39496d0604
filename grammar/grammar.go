// Package grammar describes command syntax for documentation.
//
// A grammar tree is built once from the constructors in this package and is
// never modified afterward. It is used only to render usage text; the
// executable command tree lives in package dispatch.
package grammar

import (
	"slices"
	"strings"
)

// Node is a node in a syntax description. It is exactly one of [Literal],
// [Argument], [Sequence], [OneOf], [Optional], or [Concat].
type Node interface {
	grammarNode()
}

// Literal is a fixed keyword.
type Literal struct {
	Text string
}

// Argument is a named slot for user input.
type Argument struct {
	Name string
}

// Sequence is a list of nodes that appear in order.
type Sequence struct {
	Items []Node
}

// OneOf is a choice among alternatives. When Optional is set, the choice as
// a whole may be omitted.
type OneOf struct {
	Options  []Node
	Optional bool
}

// Optional is a node that may be omitted.
type Optional struct {
	Inner Node
}

// Concat is a list of nodes written with no separator between them, as in
// key=value.
type Concat struct {
	Items []Node
}

func (Literal) grammarNode()  {}
func (Argument) grammarNode() {}
func (Sequence) grammarNode() {}
func (OneOf) grammarNode()    {}
func (Optional) grammarNode() {}
func (Concat) grammarNode()   {}

// Lit creates a literal. Surrounding space is trimmed. Panics if text is blank.
func Lit(text string) Literal {
	text = strings.TrimSpace(text)
	if text == "" {
		panic("grammar: blank literal")
	}
	return Literal{Text: text}
}

// Arg creates an argument. Panics if name is blank.
func Arg(name string) Argument {
	name = strings.TrimSpace(name)
	if name == "" {
		panic("grammar: blank argument name")
	}
	return Argument{Name: name}
}

// Seq creates a sequence.
func Seq(nodes ...Node) Sequence {
	return Sequence{Items: nonnil(nodes)}
}

// Alt creates a required choice. Panics with fewer than two alternatives.
func Alt(nodes ...Node) OneOf {
	nodes = nonnil(nodes)
	if len(nodes) < 2 {
		panic("grammar: choice needs at least two options")
	}
	return OneOf{Options: nodes}
}

// OptAlt creates an optional choice. Panics with fewer than two alternatives.
func OptAlt(nodes ...Node) OneOf {
	c := Alt(nodes...)
	c.Optional = true
	return c
}

// Opt marks a node as optional. Panics if n is nil.
func Opt(n Node) Optional {
	if n == nil {
		panic("grammar: nil optional")
	}
	return Optional{Inner: n}
}

// Glue creates a concatenation.
func Glue(nodes ...Node) Concat {
	return Concat{Items: nonnil(nodes)}
}

func nonnil(nodes []Node) []Node {
	return slices.DeleteFunc(slices.Clone(nodes), func(n Node) bool { return n == nil })
}

// String renders n as human-readable syntax: literals verbatim, arguments as
// <name>, choices as (a|b), optional choices as [a|b], optional nodes as [x],
// sequences joined by spaces, and concatenations joined with nothing.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

// Join renders a list of nodes separated by spaces.
func Join(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		write(&b, n)
	}
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case Literal:
		b.WriteString(n.Text)
	case Argument:
		b.WriteByte('<')
		b.WriteString(n.Name)
		b.WriteByte('>')
	case Sequence:
		for i, m := range n.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			write(b, m)
		}
	case OneOf:
		l, r := byte('('), byte(')')
		if n.Optional {
			l, r = '[', ']'
		}
		b.WriteByte(l)
		for i, m := range n.Options {
			if i > 0 {
				b.WriteByte('|')
			}
			write(b, m)
		}
		b.WriteByte(r)
	case Optional:
		b.WriteByte('[')
		write(b, n.Inner)
		b.WriteByte(']')
	case Concat:
		for _, m := range n.Items {
			write(b, m)
		}
	default:
		panic("grammar: unknown node type")
	}
}
