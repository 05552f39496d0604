package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json/jsontext"
)

// Badger is a store backed by a Badger database.
// Expiry uses Badger's own TTL, which has one second resolution.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// OpenBadger creates a store over a Badger database.
// The store uses only keys beginning with "state\x00".
func OpenBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// Key layout is state, type, scope ID, namespace, and key, each terminated
// by a zero byte except the last.
const keySep = 0

func appendPart(b []byte, s string) []byte {
	b = append(b, s...)
	return append(b, keySep)
}

func scopePrefix(t ScopeType) []byte {
	b := appendPart(nil, "state")
	return appendPart(b, t.String())
}

func nsPrefix(s Scope, ns string) []byte {
	b := scopePrefix(s.Type)
	b = appendPart(b, s.ID)
	return appendPart(b, ns)
}

func badgerKey(s Scope, ns, key string) []byte {
	return append(nsPrefix(s, ns), key...)
}

// splitKey parses a key. ok is false if the key is not a state key.
func splitKey(k []byte) (e Entry, ok bool) {
	p := bytes.SplitN(k, []byte{keySep}, 5)
	if len(p) != 5 || string(p[0]) != "state" {
		return Entry{}, false
	}
	t, err := ParseScopeType(string(p[1]))
	if err != nil {
		return Entry{}, false
	}
	e = Entry{
		Scope:     Scope{Type: t, ID: string(p[2])},
		Namespace: string(p[3]),
		Key:       string(p[4]),
	}
	return e, true
}

func (b *Badger) Get(ctx context.Context, s Scope, ns, key string) (jsontext.Value, error) {
	var v []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(s, ns, key))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("couldn't get %v %s.%s: %w", s, ns, key, err)
	}
	return jsontext.Value(v), nil
}

func (b *Badger) Namespace(ctx context.Context, s Scope, ns string) (map[string]jsontext.Value, error) {
	r := make(map[string]jsontext.Value)
	err := b.scan(nsPrefix(s, ns), func(e Entry) error {
		r[e.Key] = e.Value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list %v %s: %w", s, ns, err)
	}
	return r, nil
}

func (b *Badger) Put(ctx context.Context, s Scope, ns, key string, v jsontext.Value, expires time.Time) error {
	k := badgerKey(s, ns, key)
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(k, bytes.Clone(v))
		if !expires.IsZero() {
			d := time.Until(expires)
			if d <= 0 {
				// Already expired.
				return txn.Delete(k)
			}
			e = e.WithTTL(d)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("couldn't put %v %s.%s: %w", s, ns, key, err)
	}
	return nil
}

func (b *Badger) Delete(ctx context.Context, s Scope, ns, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(s, ns, key))
	})
	if err != nil {
		return fmt.Errorf("couldn't delete %v %s.%s: %w", s, ns, key, err)
	}
	return nil
}

func (b *Badger) Scan(ctx context.Context, t ScopeType, ns string) (map[string]map[string]jsontext.Value, error) {
	r := make(map[string]map[string]jsontext.Value)
	err := b.scan(scopePrefix(t), func(e Entry) error {
		if e.Namespace != ns {
			return nil
		}
		m := r[e.Scope.ID]
		if m == nil {
			m = make(map[string]jsontext.Value)
			r[e.Scope.ID] = m
		}
		m[e.Key] = e.Value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't scan %v %s: %w", t, ns, err)
	}
	return r, nil
}

func (b *Badger) Dump(ctx context.Context, f func(Entry) error) error {
	return b.scan(appendPart(nil, "state"), f)
}

// scan calls f with each live entry whose key begins with prefix.
func (b *Badger) scan(prefix []byte, f func(Entry) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e, ok := splitKey(item.Key())
			if !ok {
				continue
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e.Value = v
			if exp := item.ExpiresAt(); exp != 0 {
				e.Expires = time.Unix(int64(exp), 0)
			}
			if err := f(e); err != nil {
				return err
			}
		}
		return nil
	})
}
