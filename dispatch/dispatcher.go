// Package dispatch parses command lines against trees of literal and
// argument nodes and runs the action at the matched node.
package dispatch

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"

	"github.com/chiloven/lukosbot/syncmap"
)

// Dispatcher holds registered command trees.
// Registration and execution are safe to do concurrently.
type Dispatcher[S any] struct {
	roots *syncmap.Map[string, *node[S]]
	// Log receives handler failures. If nil, slog.Default is used.
	Log *slog.Logger
}

// New creates an empty dispatcher.
func New[S any]() *Dispatcher[S] {
	return &Dispatcher[S]{roots: syncmap.New[string, *node[S]]()}
}

func compile[S any](root *Node[S]) (*node[S], error) {
	if root == nil {
		panic("dispatch: nil root")
	}
	if root.typ != nil {
		return nil, fmt.Errorf("%w: <%s>", ErrNotLiteral, root.name)
	}
	return freeze(root, root.name)
}

// Register adds a command tree. It is an error to register a name twice;
// use [Dispatcher.Replace] to change an existing command.
func (d *Dispatcher[S]) Register(root *Node[S]) error {
	n, err := compile(root)
	if err != nil {
		return err
	}
	if _, loaded := d.roots.LoadOrStore(n.name, n); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicate, n.name)
	}
	return nil
}

// Replace adds a command tree, replacing any existing command with the same
// name. It reports whether a command was replaced.
func (d *Dispatcher[S]) Replace(root *Node[S]) (bool, error) {
	n, err := compile(root)
	if err != nil {
		return false, err
	}
	_, loaded := d.roots.Swap(n.name, n)
	return loaded, nil
}

// Unregister removes a command.
func (d *Dispatcher[S]) Unregister(name string) {
	d.roots.Delete(name)
}

// Has reports whether a command is registered.
func (d *Dispatcher[S]) Has(name string) bool {
	_, ok := d.roots.Load(name)
	return ok
}

// Names returns the registered command names in sorted order.
func (d *Dispatcher[S]) Names() []string {
	r := d.roots.Keys()
	slices.Sort(r)
	return r
}

// Execute parses input and runs the action it selects.
// Literal children are preferred over the argument child when both could
// match a token. The returned status is the action's. Errors are
// [*UnknownCommandError], [*SyntaxError], or [*HandlerError]; in each case
// the status is 0.
func (d *Dispatcher[S]) Execute(ctx context.Context, input string, src S) (int, error) {
	input = strings.TrimSpace(input)
	name, rest := token(input)
	cur, ok := d.roots.Load(name)
	if !ok {
		return 0, &UnknownCommandError{Name: name, Suggestions: d.suggest(name)}
	}
	c := &Context[S]{Source: src, Input: input, Command: name}
	path := []string{name}
	pos := len(name)
	for {
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		pos += len(rest) - len(trimmed)
		rest = trimmed
		if rest == "" {
			break
		}
		tok, after := token(rest)
		if next := cur.lits[tok]; next != nil {
			cur, rest = next, after
			pos += len(tok)
			path = append(path, tok)
			continue
		}
		a := cur.arg
		if a == nil {
			return 0, &SyntaxError{Command: name, Input: input, Cursor: pos, Path: path, Err: fmt.Errorf("%w: %q", ErrUnexpected, tok)}
		}
		if a.typ.Greedy() {
			tok, after = strings.TrimRightFunc(rest, unicode.IsSpace), ""
		}
		v, err := a.typ.Parse(tok)
		if err != nil {
			return 0, &SyntaxError{Command: name, Input: input, Cursor: pos, Path: path, Err: err}
		}
		c.args = append(c.args, Arg{Name: a.name, Raw: tok, Value: v})
		cur, rest = a, after
		pos += len(tok)
		path = append(path, "<"+a.name+">")
	}
	if cur.action == nil {
		return 0, &SyntaxError{Command: name, Input: input, Cursor: len(input), Path: path, Err: ErrIncomplete}
	}
	return d.run(ctx, cur.action, c)
}

func (d *Dispatcher[S]) run(ctx context.Context, a Action[S], c *Context[S]) (status int, err error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		status = 0
		err = &HandlerError{Command: c.Command, Input: c.Input, Panic: r, Stack: stack}
		log.ErrorContext(ctx, "command panicked",
			slog.String("command", c.Command),
			slog.String("input", c.Input),
			slog.Any("source", c.Source),
			slog.Any("panic", r),
			slog.String("stack", string(stack)),
		)
	}()
	status, err = a(ctx, c)
	if err != nil {
		log.ErrorContext(ctx, "command failed",
			slog.String("command", c.Command),
			slog.String("input", c.Input),
			slog.Any("source", c.Source),
			slog.Any("err", err),
		)
		return 0, &HandlerError{Command: c.Command, Input: c.Input, Err: err}
	}
	return status, nil
}

// token splits the first whitespace-delimited token from s, which must not
// begin with whitespace.
func token(s string) (tok, rest string) {
	k := strings.IndexFunc(s, unicode.IsSpace)
	if k < 0 {
		return s, ""
	}
	return s[:k], s[k:]
}

// Similarity threshold and count for unknown command suggestions.
const (
	suggestThreshold = 0.8
	suggestCount     = 3
)

func (d *Dispatcher[S]) suggest(name string) []string {
	if name == "" {
		return nil
	}
	type scored struct {
		name  string
		score float64
	}
	var s []scored
	for _, n := range d.roots.Keys() {
		v := smetrics.JaroWinkler(strings.ToLower(name), strings.ToLower(n), 0.7, 4)
		if v >= suggestThreshold {
			s = append(s, scored{n, v})
		}
	}
	slices.SortFunc(s, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	r := make([]string, 0, min(len(s), suggestCount))
	for _, v := range s[:min(len(s), suggestCount)] {
		r = append(r, v.name)
	}
	return r
}
