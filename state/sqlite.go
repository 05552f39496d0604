package state

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a store backed by an SQLite database.
type SQLite struct {
	db *sqlitex.Pool
	// now is the clock. Tests may replace it.
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// InitSQLite creates the state table in an SQLite database if it does not
// already exist.
// For convenience, it accepts either a single connection or a pool.
func InitSQLite[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get conn to initialize state: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize state schema: %w", err)
	}
	return nil
}

// OpenSQLite creates a store over a database already initialized with
// [InitSQLite].
func OpenSQLite(db *sqlitex.Pool) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

func (s *SQLite) conn(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn for state: %w", err)
	}
	return conn, nil
}

func (s *SQLite) Get(ctx context.Context, sc Scope, ns, key string) (jsontext.Value, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer s.db.Put(conn)
	const sel = `SELECT v FROM state WHERE scope_type=:type AND scope_id=:id AND namespace=:ns AND k=:k AND (expires=0 OR expires>:now)`
	var v jsontext.Value
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type": sc.Type.String(),
			":id":   sc.ID,
			":ns":   ns,
			":k":    key,
			":now":  s.now().UnixMilli(),
		},
		ResultFunc: func(st *sqlite.Stmt) error {
			v = jsontext.Value(st.ColumnText(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't get %v %s.%s: %w", sc, ns, key, err)
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *SQLite) Namespace(ctx context.Context, sc Scope, ns string) (map[string]jsontext.Value, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer s.db.Put(conn)
	const sel = `SELECT k, v FROM state WHERE scope_type=:type AND scope_id=:id AND namespace=:ns AND (expires=0 OR expires>:now)`
	r := make(map[string]jsontext.Value)
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type": sc.Type.String(),
			":id":   sc.ID,
			":ns":   ns,
			":now":  s.now().UnixMilli(),
		},
		ResultFunc: func(st *sqlite.Stmt) error {
			r[st.ColumnText(0)] = jsontext.Value(st.ColumnText(1))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't list %v %s: %w", sc, ns, err)
	}
	return r, nil
}

func (s *SQLite) Put(ctx context.Context, sc Scope, ns, key string, v jsontext.Value, expires time.Time) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer s.db.Put(conn)
	const upsert = `INSERT INTO state (scope_type, scope_id, namespace, k, v, expires, created, updated)
		VALUES (:type, :id, :ns, :k, :v, :expires, :now, :now)
		ON CONFLICT DO UPDATE SET v=excluded.v, expires=excluded.expires, updated=excluded.updated, version=version+1`
	var exp int64
	if !expires.IsZero() {
		exp = expires.UnixMilli()
	}
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type":    sc.Type.String(),
			":id":      sc.ID,
			":ns":      ns,
			":k":       key,
			":v":       string(v),
			":expires": exp,
			":now":     s.now().UnixMilli(),
		},
	}
	if err := sqlitex.Execute(conn, upsert, &opts); err != nil {
		return fmt.Errorf("couldn't put %v %s.%s: %w", sc, ns, key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, sc Scope, ns, key string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer s.db.Put(conn)
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type": sc.Type.String(),
			":id":   sc.ID,
			":ns":   ns,
			":k":    key,
		},
	}
	err = sqlitex.Execute(conn, `DELETE FROM state WHERE scope_type=:type AND scope_id=:id AND namespace=:ns AND k=:k`, &opts)
	if err != nil {
		return fmt.Errorf("couldn't delete %v %s.%s: %w", sc, ns, key, err)
	}
	return nil
}

func (s *SQLite) Scan(ctx context.Context, t ScopeType, ns string) (map[string]map[string]jsontext.Value, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer s.db.Put(conn)
	const sel = `SELECT scope_id, k, v FROM state WHERE scope_type=:type AND namespace=:ns AND (expires=0 OR expires>:now)`
	r := make(map[string]map[string]jsontext.Value)
	opts := sqlitex.ExecOptions{
		Named: map[string]any{
			":type": t.String(),
			":ns":   ns,
			":now":  s.now().UnixMilli(),
		},
		ResultFunc: func(st *sqlite.Stmt) error {
			id := st.ColumnText(0)
			m := r[id]
			if m == nil {
				m = make(map[string]jsontext.Value)
				r[id] = m
			}
			m[st.ColumnText(1)] = jsontext.Value(st.ColumnText(2))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't scan %v %s: %w", t, ns, err)
	}
	return r, nil
}

func (s *SQLite) Dump(ctx context.Context, f func(Entry) error) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer s.db.Put(conn)
	const sel = `SELECT scope_type, scope_id, namespace, k, v, expires FROM state WHERE expires=0 OR expires>:now ORDER BY scope_type, scope_id, namespace, k`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":now": s.now().UnixMilli()},
		ResultFunc: func(st *sqlite.Stmt) error {
			t, err := ParseScopeType(st.ColumnText(0))
			if err != nil {
				return err
			}
			e := Entry{
				Scope:     Scope{Type: t, ID: st.ColumnText(1)},
				Namespace: st.ColumnText(2),
				Key:       st.ColumnText(3),
				Value:     jsontext.Value(st.ColumnText(4)),
			}
			if exp := st.ColumnInt64(5); exp != 0 {
				e.Expires = time.UnixMilli(exp)
			}
			return f(e)
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return fmt.Errorf("couldn't dump state: %w", err)
	}
	return nil
}

// Sweep deletes expired values and returns the number removed.
func (s *SQLite) Sweep(ctx context.Context) (int, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer s.db.Put(conn)
	opts := sqlitex.ExecOptions{Named: map[string]any{":now": s.now().UnixMilli()}}
	if err := sqlitex.Execute(conn, `DELETE FROM state WHERE expires!=0 AND expires<=:now`, &opts); err != nil {
		return 0, fmt.Errorf("couldn't sweep expired state: %w", err)
	}
	return conn.Changes(), nil
}
