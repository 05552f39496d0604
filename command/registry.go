package command

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// ErrDuplicateCommand is returned when adding a command whose name is
// already in a registry.
var ErrDuplicateCommand = errors.New("duplicate command")

// Registry is the ordered set of known commands.
// Lookup by name ignores case.
type Registry struct {
	mu     sync.RWMutex
	cmds   []Command
	byName map[string]Command
}

func fold(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Add adds commands in order. Commands with names already present are
// skipped, and the returned error lists them.
func (r *Registry) Add(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName == nil {
		r.byName = make(map[string]Command)
	}
	var errs []error
	for _, c := range cmds {
		k := fold(c.Name())
		if r.byName[k] != nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateCommand, c.Name()))
			continue
		}
		r.byName[k] = c
		r.cmds = append(r.cmds, c)
	}
	return errors.Join(errs...)
}

// All returns all commands in the order they were added.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.cmds)
}

// Visible returns the commands that are not hidden, sorted by name.
func (r *Registry) Visible() []Command {
	s := slices.DeleteFunc(r.All(), IsHidden)
	slices.SortFunc(s, func(a, b Command) int { return strings.Compare(a.Name(), b.Name()) })
	return s
}

// Get finds a command by name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[fold(name)]
	return c, ok
}

// List returns the names of visible commands joined by spaces.
func (r *Registry) List() string {
	v := r.Visible()
	names := make([]string, len(v))
	for i, c := range v {
		names[i] = c.Name()
	}
	return strings.Join(names, " ")
}

// RegisterAll registers every command with d and returns the number that
// succeeded. Commands that fail to register are logged and skipped.
func (r *Registry) RegisterAll(log *slog.Logger, d *Dispatcher) int {
	var n int
	for _, c := range r.All() {
		if err := c.Register(d); err != nil {
			log.Error("couldn't register command", slog.String("command", c.Name()), slog.Any("err", err))
			continue
		}
		n++
	}
	return n
}
