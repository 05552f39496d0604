// Package command implements chat commands: the source a command runs for,
// the command registry, the processor turning messages into command
// executions, and the built-in commands.
package command

import (
	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/usage"
)

type (
	// Dispatcher is a dispatcher of commands invoked by a [*Source].
	Dispatcher = dispatch.Dispatcher[*Source]
	// Context is the state of one command execution.
	Context = dispatch.Context[*Source]
	// Node is a command tree node.
	Node = dispatch.Node[*Source]
	// Action runs a command.
	Action = dispatch.Action[*Source]
)

// Literal creates a node matching exactly name.
func Literal(name string) *Node { return dispatch.Literal[*Source](name) }

// Argument creates a node binding input to name.
func Argument(name string, typ dispatch.ArgType) *Node {
	return dispatch.Argument[*Source](name, typ)
}

// Command is a chat command.
type Command interface {
	// Name is the name that invokes the command.
	Name() string
	// Description is a one line summary.
	Description() string
	// Usage is the command's documentation.
	Usage() *usage.Node
	// Register adds the command's tree to d.
	Register(d *Dispatcher) error
}

// Hidden is implemented by commands that should not be listed in help.
type Hidden interface {
	Hidden() bool
}

// IsHidden reports whether c is hidden from help.
func IsHidden(c Command) bool {
	h, ok := c.(Hidden)
	return ok && h.Hidden()
}

// Tree is a command built from a fixed tree.
type Tree struct {
	// Root is the command tree. Its name is the command name.
	Root *Node
	// Doc is the command's documentation.
	Doc *usage.Node
	// Summary is the one line description. If empty, the description from
	// Doc is used.
	Summary string
	// Unlisted hides the command from help.
	Unlisted bool
}

var _ Command = (*Tree)(nil)

func (t *Tree) Name() string { return t.Root.Name() }

func (t *Tree) Description() string {
	if t.Summary != "" {
		return t.Summary
	}
	if t.Doc != nil {
		return t.Doc.Description
	}
	return ""
}

func (t *Tree) Usage() *usage.Node { return t.Doc }

func (t *Tree) Register(d *Dispatcher) error { return d.Register(t.Root) }

func (t *Tree) Hidden() bool { return t.Unlisted }
