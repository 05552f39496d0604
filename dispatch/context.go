package dispatch

import "slices"

// Context is the state of one command execution.
type Context[S any] struct {
	// Source is the caller.
	Source S
	// Input is the trimmed command line.
	Input string
	// Command is the name of the executed command.
	Command string

	args []Arg
}

// Arg is an argument bound during parsing.
type Arg struct {
	Name string
	// Raw is the input text bound to the argument.
	Raw string
	// Value is the parsed value.
	Value any
}

// Args returns the bound arguments in input order.
func (c *Context[S]) Args() []Arg {
	return slices.Clone(c.args)
}

// Value returns the parsed value of an argument.
func (c *Context[S]) Value(name string) (any, bool) {
	for _, a := range c.args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Has reports whether an argument was bound.
func (c *Context[S]) Has(name string) bool {
	_, ok := c.Value(name)
	return ok
}

// String returns a string argument, or the empty string if it is unbound.
// For arguments of other types, it returns the raw input.
func (c *Context[S]) String(name string) string {
	for _, a := range c.args {
		if a.Name == name {
			if s, ok := a.Value.(string); ok {
				return s
			}
			return a.Raw
		}
	}
	return ""
}

// Int returns an integer argument, or def if it is unbound.
func (c *Context[S]) Int(name string, def int64) int64 {
	v, _ := c.Value(name)
	if n, ok := v.(int64); ok {
		return n
	}
	return def
}
