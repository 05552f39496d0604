package state

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"gopkg.in/yaml.v3"
)

// YAML is a store held in memory and saved to a YAML file after every
// change. It suits small deployments and is the format of state exports.
type YAML struct {
	path string

	mu      sync.Mutex
	entries map[yamlKey]yamlEntry
	now     func() time.Time
}

var _ Store = (*YAML)(nil)

type yamlKey struct {
	scope   Scope
	ns, key string
}

type yamlEntry struct {
	v       jsontext.Value
	expires time.Time
}

// yamlFile is the document stored in the file.
type yamlFile struct {
	Entries []yamlDoc `yaml:"entries"`
}

type yamlDoc struct {
	Scope     string `yaml:"scope"`
	ID        string `yaml:"id"`
	Namespace string `yaml:"namespace"`
	Key       string `yaml:"key"`
	// Value is the JSON encoding of the value.
	Value   string     `yaml:"value"`
	Expires *time.Time `yaml:"expires,omitempty"`
}

// OpenYAML loads a store from a YAML file.
// A missing file is treated as empty and created on the first change.
func OpenYAML(path string) (*YAML, error) {
	y := &YAML{path: path, entries: make(map[yamlKey]yamlEntry), now: time.Now}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return y, nil
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't read state file: %w", err)
	}
	var f yamlFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("couldn't decode state file %s: %w", path, err)
	}
	for i, d := range f.Entries {
		t, err := ParseScopeType(d.Scope)
		if err != nil {
			return nil, fmt.Errorf("entry %d in %s: %w", i, path, err)
		}
		v := jsontext.Value(d.Value)
		if !v.IsValid() {
			return nil, fmt.Errorf("entry %d in %s: invalid JSON value %q", i, path, d.Value)
		}
		e := yamlEntry{v: v}
		if d.Expires != nil {
			e.expires = *d.Expires
		}
		y.entries[yamlKey{Scope{t, d.ID}, d.Namespace, d.Key}] = e
	}
	return y, nil
}

func (y *YAML) Get(ctx context.Context, s Scope, ns, key string) (jsontext.Value, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	e, ok := y.entries[yamlKey{s, ns, key}]
	if !ok || !live(e.expires, y.now()) {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.v), nil
}

func (y *YAML) Namespace(ctx context.Context, s Scope, ns string) (map[string]jsontext.Value, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	now := y.now()
	r := make(map[string]jsontext.Value)
	for k, e := range y.entries {
		if k.scope == s && k.ns == ns && live(e.expires, now) {
			r[k.key] = bytes.Clone(e.v)
		}
	}
	return r, nil
}

func (y *YAML) Put(ctx context.Context, s Scope, ns, key string, v jsontext.Value, expires time.Time) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	k := yamlKey{s, ns, key}
	old, had := y.entries[k]
	y.entries[k] = yamlEntry{v: bytes.Clone(v), expires: expires}
	if err := y.save(); err != nil {
		if had {
			y.entries[k] = old
		} else {
			delete(y.entries, k)
		}
		return err
	}
	return nil
}

func (y *YAML) Delete(ctx context.Context, s Scope, ns, key string) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	k := yamlKey{s, ns, key}
	old, had := y.entries[k]
	if !had {
		return nil
	}
	delete(y.entries, k)
	if err := y.save(); err != nil {
		y.entries[k] = old
		return err
	}
	return nil
}

func (y *YAML) Scan(ctx context.Context, t ScopeType, ns string) (map[string]map[string]jsontext.Value, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	now := y.now()
	r := make(map[string]map[string]jsontext.Value)
	for k, e := range y.entries {
		if k.scope.Type != t || k.ns != ns || !live(e.expires, now) {
			continue
		}
		m := r[k.scope.ID]
		if m == nil {
			m = make(map[string]jsontext.Value)
			r[k.scope.ID] = m
		}
		m[k.key] = bytes.Clone(e.v)
	}
	return r, nil
}

func (y *YAML) Dump(ctx context.Context, f func(Entry) error) error {
	y.mu.Lock()
	docs := y.snapshot()
	y.mu.Unlock()
	for _, d := range docs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// snapshot returns the live entries in a stable order.
// y.mu must be held.
func (y *YAML) snapshot() []Entry {
	now := y.now()
	r := make([]Entry, 0, len(y.entries))
	for k, e := range y.entries {
		if !live(e.expires, now) {
			continue
		}
		r = append(r, Entry{Scope: k.scope, Namespace: k.ns, Key: k.key, Value: bytes.Clone(e.v), Expires: e.expires})
	}
	slices.SortFunc(r, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Scope.Type, b.Scope.Type),
			cmp.Compare(a.Scope.ID, b.Scope.ID),
			cmp.Compare(a.Namespace, b.Namespace),
			cmp.Compare(a.Key, b.Key),
		)
	})
	return r
}

// save writes the file. y.mu must be held.
func (y *YAML) save() error {
	var f yamlFile
	for _, e := range y.snapshot() {
		d := yamlDoc{
			Scope:     e.Scope.Type.String(),
			ID:        e.Scope.ID,
			Namespace: e.Namespace,
			Key:       e.Key,
			Value:     string(e.Value),
		}
		if !e.Expires.IsZero() {
			t := e.Expires.UTC()
			d.Expires = &t
		}
		f.Entries = append(f.Entries, d)
	}
	b, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("couldn't encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(y.path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("couldn't save state: %w", err)
	}
	_, err = tmp.Write(b)
	err = errors.Join(err, tmp.Close())
	if err == nil {
		err = os.Rename(tmp.Name(), y.path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("couldn't save state: %w", err)
	}
	return nil
}
