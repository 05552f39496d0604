// Package privacy holds the list of users who opted out of having their
// messages recorded.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
)

// ErrPrivate is an error returned by Check when the user is in the list.
var ErrPrivate = errors.New("user is private")

// Key returns the list key for a user on a platform.
func Key(p message.Platform, id int64) string {
	return string(p) + ":" + strconv.FormatInt(id, 10)
}

// List is a privacy list backed by an SQL database.
type List struct {
	db *sqlitex.Pool
}

// Open opens an existing privacy list in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*List, error) {
	conn, err := db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to open privacy list: %w", err)
	}
	defer db.Put(conn)
	st, err := conn.Prepare(`SELECT COUNT(*) FROM sqlite_schema WHERE type='table' AND name='privacy'`)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare statement to check privacy schema: %w", err)
	}
	n, err := sqlitex.ResultInt(st)
	if err != nil {
		return nil, fmt.Errorf("couldn't check privacy schema: %w", err)
	}
	if n == 0 {
		return nil, errors.New("privacy list is not initialized")
	}
	return &List{db: db}, nil
}

// Init initializes a list in an SQL database if it does not exist.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	err := sqlitex.ExecuteTransient(conn, `CREATE TABLE IF NOT EXISTS privacy (user TEXT PRIMARY KEY, since INTEGER NOT NULL DEFAULT (unixepoch())) STRICT, WITHOUT ROWID`, nil)
	if err != nil {
		return fmt.Errorf("couldn't initialize privacy list: %w", err)
	}
	return nil
}

// Add adds a user to the list. Adding a user already present is not an
// error.
func (l *List) Add(ctx context.Context, user string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to add user to privacy list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{user}}
	return sqlitex.Execute(conn, `INSERT OR IGNORE INTO privacy (user) VALUES (?)`, &opts)
}

// Remove removes a user from the list.
func (l *List) Remove(ctx context.Context, user string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to remove user from privacy list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{user}}
	return sqlitex.Execute(conn, `DELETE FROM privacy WHERE user=?`, &opts)
}

// Check returns ErrPrivate if a user is in the list.
func (l *List) Check(ctx context.Context, user string) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to check user privacy: %w", err)
	}
	st, err := conn.Prepare(`SELECT ? IN (SELECT user FROM privacy)`)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to check user privacy: %w", err)
	}
	st.BindText(1, user)
	ok, err := sqlitex.ResultBool(st)
	if err != nil {
		return err
	}
	if ok {
		return ErrPrivate
	}
	return nil
}

// Len returns the number of users in the list.
func (l *List) Len(ctx context.Context) (int, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to count privacy list: %w", err)
	}
	st, err := conn.Prepare(`SELECT COUNT(*) FROM privacy`)
	if err != nil {
		return 0, fmt.Errorf("couldn't prepare statement to count privacy list: %w", err)
	}
	return sqlitex.ResultInt(st)
}
