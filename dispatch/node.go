package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Action runs a command. By convention it returns 1 on success and 0 for a
// failure it has already reported to the user. A returned error is wrapped
// in a [*HandlerError].
type Action[S any] func(ctx context.Context, c *Context[S]) (int, error)

// Node is a node under construction in a command tree.
// Nodes are copied when registered, so changes afterward have no effect on
// the dispatcher.
type Node[S any] struct {
	name     string
	typ      ArgType
	action   Action[S]
	children []*Node[S]
}

// Literal creates a node matching exactly name.
// Panics if name is empty or contains spaces.
func Literal[S any](name string) *Node[S] {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		panic(fmt.Errorf("dispatch: bad literal %q", name))
	}
	return &Node[S]{name: name}
}

// Argument creates a node binding input to name.
func Argument[S any](name string, typ ArgType) *Node[S] {
	if name == "" {
		panic("dispatch: empty argument name")
	}
	if typ == nil {
		panic("dispatch: nil argument type")
	}
	return &Node[S]{name: name, typ: typ}
}

// Then adds children to n and returns n.
func (n *Node[S]) Then(children ...*Node[S]) *Node[S] {
	n.children = append(n.children, children...)
	return n
}

// Executes sets the action that runs when input ends at n.
func (n *Node[S]) Executes(a Action[S]) *Node[S] {
	n.action = a
	return n
}

// Name returns the literal text or argument name.
func (n *Node[S]) Name() string {
	return n.name
}

// node is a registered, immutable tree node.
type node[S any] struct {
	name   string
	typ    ArgType
	action Action[S]
	lits   map[string]*node[S]
	arg    *node[S]
}

// freeze validates the tree under n and copies it.
func freeze[S any](n *Node[S], path string) (*node[S], error) {
	r := &node[S]{name: n.name, typ: n.typ, action: n.action}
	if n.typ != nil && n.typ.Greedy() && len(n.children) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrGreedyNotLast, path)
	}
	for _, c := range n.children {
		if c == nil {
			continue
		}
		p := path + " " + c.label()
		f, err := freeze(c, p)
		if err != nil {
			return nil, err
		}
		if c.typ != nil {
			if r.arg != nil {
				return nil, fmt.Errorf("%w: %s", ErrMultipleArguments, p)
			}
			r.arg = f
			continue
		}
		if r.lits == nil {
			r.lits = make(map[string]*node[S])
		}
		if r.lits[c.name] != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLiteral, p)
		}
		r.lits[c.name] = f
	}
	return r, nil
}

func (n *Node[S]) label() string {
	if n.typ != nil {
		return "<" + n.name + ">"
	}
	return n.name
}
