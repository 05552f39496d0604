package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"
)

// ErrNotFound is returned by [Store.Get] when no live value exists.
var ErrNotFound = errors.New("no such value")

// Store is durable storage for JSON encoded values.
// Keys are (scope, namespace, key) triples. Expired values are never
// returned.
type Store interface {
	// Get returns the value at a key.
	Get(ctx context.Context, s Scope, ns, key string) (jsontext.Value, error)
	// Namespace returns all live values of a namespace in a scope.
	Namespace(ctx context.Context, s Scope, ns string) (map[string]jsontext.Value, error)
	// Put upserts a value. A zero expires means the value never expires.
	Put(ctx context.Context, s Scope, ns, key string, v jsontext.Value, expires time.Time) error
	// Delete removes a value. Deleting a missing value is not an error.
	Delete(ctx context.Context, s Scope, ns, key string) error
	// Scan returns the values of a namespace in every scope of a type,
	// keyed first by scope ID and then by key.
	Scan(ctx context.Context, t ScopeType, ns string) (map[string]map[string]jsontext.Value, error)
	// Dump calls f with every live entry.
	// If f returns an error, Dump stops and returns it.
	Dump(ctx context.Context, f func(Entry) error) error
}

// Entry is a single stored value.
type Entry struct {
	Scope     Scope
	Namespace string
	Key       string
	Value     jsontext.Value
	// Expires is the time after which the entry is dropped, or zero.
	Expires time.Time
}

// Copy puts every entry of src into dst and returns the number copied.
func Copy(ctx context.Context, dst, src Store) (int, error) {
	var n int
	err := src.Dump(ctx, func(e Entry) error {
		if err := dst.Put(ctx, e.Scope, e.Namespace, e.Key, e.Value, e.Expires); err != nil {
			return fmt.Errorf("couldn't copy %v %s.%s: %w", e.Scope, e.Namespace, e.Key, err)
		}
		n++
		return nil
	})
	return n, err
}

func live(expires, now time.Time) bool {
	return expires.IsZero() || now.Before(expires)
}
