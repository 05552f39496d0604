package state

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
)

// DefaultNamespace is the namespace of definitions that don't name one.
const DefaultNamespace = "prefs"

// Definition describes a preference with values of type T.
type Definition[T any] struct {
	// Name is the key of the preference within its namespace.
	Name string
	// Namespace groups related preferences. Empty means [DefaultNamespace].
	Namespace string
	// Description is shown to users listing preferences.
	Description string
	// Scopes are the scope types at which the preference may be set.
	// Empty means all of them.
	Scopes []ScopeType
	// Preferred is the scope type that Set and Clear use when it is allowed
	// and available for the target.
	Preferred ScopeType
	// Default is the value when no scope has one.
	Default T
	// Parse converts user input to a value.
	Parse func(string) (T, error)
	// Validate optionally rejects parsed values.
	Validate func(T) error
	// Format converts a value to display text. If nil, values are formatted
	// with fmt.Sprint.
	Format func(T) string
	// Suggest lists example values shown to users.
	Suggest []string
	// TTL, if positive, is how long set values last.
	TTL time.Duration
	// Log receives values that fail to decode. If nil, slog.Default is used.
	Log *slog.Logger
}

// resolveOrder is the order in which scopes are consulted.
var resolveOrder = [...]ScopeType{TypeChat, TypeUser, TypeGlobal}

func (d *Definition[T]) ns() string {
	return cmp.Or(d.Namespace, DefaultNamespace)
}

func (d *Definition[T]) allowed(t ScopeType) bool {
	return len(d.Scopes) == 0 || slices.Contains(d.Scopes, t)
}

func (d *Definition[T]) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Resolve returns the value from the narrowest allowed scope that has one,
// or the default. Stored values that fail to decode are skipped.
func (d *Definition[T]) Resolve(ctx context.Context, st Store, t Target) (T, error) {
	for _, typ := range resolveOrder {
		if !d.allowed(typ) {
			continue
		}
		s, ok := t.Scope(typ)
		if !ok {
			continue
		}
		b, err := st.Get(ctx, s, d.ns(), d.Name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return d.Default, err
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			d.log().DebugContext(ctx, "skipping undecodable preference",
				slog.String("pref", d.Name),
				slog.String("scope", s.String()),
				slog.Any("err", err),
			)
			continue
		}
		return v, nil
	}
	return d.Default, nil
}

// PreferredScope returns the scope that Set and Clear use for the target:
// the definition's preferred scope type if it is allowed and available,
// otherwise the first allowed and available of user, chat, and global.
func (d *Definition[T]) PreferredScope(t Target) (Scope, bool) {
	if d.allowed(d.Preferred) {
		if s, ok := t.Scope(d.Preferred); ok {
			return s, true
		}
	}
	for _, typ := range [...]ScopeType{TypeUser, TypeChat, TypeGlobal} {
		if !d.allowed(typ) {
			continue
		}
		if s, ok := t.Scope(typ); ok {
			return s, true
		}
	}
	return Scope{}, false
}

// Store writes a value at the preferred scope and returns that scope.
func (d *Definition[T]) Store(ctx context.Context, st Store, t Target, v T) (Scope, error) {
	if d.Validate != nil {
		if err := d.Validate(v); err != nil {
			return Scope{}, err
		}
	}
	s, ok := d.PreferredScope(t)
	if !ok {
		return Scope{}, fmt.Errorf("%s can't be set here", d.Name)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Scope{}, fmt.Errorf("couldn't encode %s: %w", d.Name, err)
	}
	var exp time.Time
	if d.TTL > 0 {
		exp = time.Now().Add(d.TTL)
	}
	if err := st.Put(ctx, s, d.ns(), d.Name, b, exp); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Set parses raw and stores the result at the preferred scope.
func (d *Definition[T]) Set(ctx context.Context, st Store, t Target, raw string) (Scope, error) {
	v, err := d.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Scope{}, fmt.Errorf("invalid value for %s: %w", d.Name, err)
	}
	return d.Store(ctx, st, t, v)
}

// Clear removes the value at the preferred scope and returns that scope.
func (d *Definition[T]) Clear(ctx context.Context, st Store, t Target) (Scope, error) {
	s, ok := d.PreferredScope(t)
	if !ok {
		return Scope{}, fmt.Errorf("%s can't be cleared here", d.Name)
	}
	return s, st.Delete(ctx, s, d.ns(), d.Name)
}

// Get resolves the value and formats it for display.
func (d *Definition[T]) Get(ctx context.Context, st Store, t Target) (string, error) {
	v, err := d.Resolve(ctx, st, t)
	if err != nil {
		return "", err
	}
	if d.Format != nil {
		return d.Format(v), nil
	}
	return fmt.Sprint(v), nil
}

// Info describes the definition.
func (d *Definition[T]) Info() Info {
	return Info{Name: d.Name, Namespace: d.ns(), Description: d.Description, Suggest: slices.Clone(d.Suggest)}
}

// Info is the type-independent description of a preference.
type Info struct {
	Name        string
	Namespace   string
	Description string
	Suggest     []string
}

// Pref is a preference with its value type erased, for commands that work
// on preferences by name. *Definition[T] implements Pref.
type Pref interface {
	Info() Info
	Get(ctx context.Context, st Store, t Target) (string, error)
	Set(ctx context.Context, st Store, t Target, raw string) (Scope, error)
	Clear(ctx context.Context, st Store, t Target) (Scope, error)
}

// Registry is a set of preferences addressable by name.
type Registry struct {
	mu    sync.RWMutex
	prefs map[string]Pref
}

// Add adds preferences. A preference with the same name as one already
// present replaces it.
func (r *Registry) Add(prefs ...Pref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prefs == nil {
		r.prefs = make(map[string]Pref)
	}
	for _, p := range prefs {
		r.prefs[strings.ToLower(p.Info().Name)] = p
	}
}

// Find returns the preference with the given name, ignoring case.
func (r *Registry) Find(name string) (Pref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefs[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// All returns the preferences sorted by name.
func (r *Registry) All() []Pref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := make([]Pref, 0, len(r.prefs))
	for _, p := range r.prefs {
		s = append(s, p)
	}
	slices.SortFunc(s, func(a, b Pref) int { return strings.Compare(a.Info().Name, b.Info().Name) })
	return s
}

// Names returns the names of the preferences in sorted order.
func (r *Registry) Names() []string {
	all := r.All()
	s := make([]string, len(all))
	for i, p := range all {
		s[i] = p.Info().Name
	}
	return s
}
