// Package spoken records the messages the bot sends.
package spoken

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
)

// Meta is metadata that may be associated with a sent message.
type Meta struct {
	// Command is the name of the command that produced the message.
	Command string `json:"command,omitzero"`
	// User is the userhash of the sender whose message prompted this one.
	User string `json:"user,omitzero"`
	// Cost is the time in nanoseconds spent producing the message.
	Cost int64 `json:"cost,omitzero"`
}

// Entry is a recorded message.
type Entry struct {
	Chat  string
	Text  string
	Parts []string
	Time  time.Time
	Meta  Meta
}

// Record records a sent message with its metadata.
func Record[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, out message.Outbound, tm time.Time, meta Meta) error {
	conn, put, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to record message: %w", err)
	}
	defer put()
	const insert = `INSERT INTO spoken (chat, msg, parts, time, meta) VALUES (:chat, :msg, JSONB(CAST(:parts AS TEXT)), :time, JSONB(CAST(:meta AS TEXT)))`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record message: %w", err)
	}
	kinds := make([]string, len(out.Parts))
	for i, p := range out.Parts {
		kinds[i] = message.Kind(p)
	}
	parts, err := json.Marshal(kinds)
	if err != nil {
		// Should be impossible. Explode loudly.
		go panic(fmt.Errorf("spoken: couldn't marshal parts %#v: %w", kinds, err))
	}
	md, err := json.Marshal(&meta)
	if err != nil {
		// Again, should be impossible.
		go panic(fmt.Errorf("spoken: couldn't marshal metadata %#v: %w", meta, err))
	}
	st.SetText(":chat", out.Addr.ChatKey())
	st.SetText(":msg", out.Text())
	st.SetBytes(":parts", parts)
	st.SetInt64(":time", tm.UnixNano())
	st.SetBytes(":meta", md)
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert spoken message: %w", err)
	}
	return nil
}

// Latest obtains the most recent message sent to a chat.
// If no message has been recorded, the result is nil with a nil error.
func Latest[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, chat string) (*Entry, error) {
	conn, put, err := take(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to find message: %w", err)
	}
	defer put()
	const sel = `SELECT msg, JSON(parts), time, JSON(meta) FROM spoken WHERE chat=:chat ORDER BY time DESC, id DESC LIMIT 1`
	var r *Entry
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":chat": chat},
		ResultFunc: func(st *sqlite.Stmt) error {
			e := Entry{
				Chat: chat,
				Text: st.ColumnText(0),
				Time: time.Unix(0, st.ColumnInt64(2)),
			}
			if err := json.Unmarshal([]byte(st.ColumnText(1)), &e.Parts); err != nil {
				return fmt.Errorf("couldn't decode parts: %w", err)
			}
			if md := st.ColumnText(3); md != "" {
				if err := json.Unmarshal([]byte(md), &e.Meta); err != nil {
					return fmt.Errorf("couldn't decode metadata: %w", err)
				}
			}
			r = &e
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't find latest message: %w", err)
	}
	return r, nil
}

// Prune deletes messages recorded before the given time and returns the
// number deleted.
func Prune[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, before time.Time) (int, error) {
	conn, put, err := take(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to prune messages: %w", err)
	}
	defer put()
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":before": before.UnixNano()},
	}
	if err := sqlitex.Execute(conn, `DELETE FROM spoken WHERE time < :before`, &opts); err != nil {
		return 0, fmt.Errorf("couldn't prune messages: %w", err)
	}
	return conn.Changes(), nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record sent messages.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	conn, put, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to initialize spoken messages: %w", err)
	}
	defer put()
	err = sqlitex.ExecuteScript(conn, schemaSQL, nil)
	if err != nil {
		return fmt.Errorf("couldn't initialize spoken messages schema: %w", err)
	}
	return nil
}

// take gets a connection from db and a function to return it.
func take[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) (*sqlite.Conn, func(), error) {
	switch db := any(db).(type) {
	case *sqlite.Conn:
		return db, func() {}, nil
	case *sqlitex.Pool:
		conn, err := db.Take(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { db.Put(conn) }, nil
	default:
		panic("spoken: unreachable")
	}
}
