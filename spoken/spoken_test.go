package spoken_test

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/spoken"
)

var dbCount atomic.Int64

func testDB(ctx context.Context) *sqlitex.Pool {
	k := dbCount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:test-record-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		panic(err)
	}
	if err := spoken.Init(ctx, pool); err != nil {
		panic(err)
	}
	return pool
}

var kessoku = message.Address{Platform: message.Discord, ChatID: 4, Group: true}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	conn, err := db.Take(ctx)
	defer db.Put(conn)
	if err != nil {
		t.Fatalf("couldn't get conn: %v", err)
	}
	out := message.Text(kessoku, "bocchi ryo").With(message.ImageBytes("x.png", []byte("png"), "image/png"))
	err = spoken.Record(ctx, db, out, time.Unix(1, 0), spoken.Meta{Command: "echo", Cost: time.Second.Nanoseconds()})
	if err != nil {
		t.Errorf("couldn't record: %v", err)
	}

	var n int
	opts := sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n++
			chat := stmt.ColumnText(0)
			msg := stmt.ColumnText(1)
			parts := stmt.ColumnText(2)
			tm := stmt.ColumnInt64(3)
			meta := stmt.ColumnText(4)

			if chat != "DISCORD:g:4" {
				t.Errorf("wrong chat recorded: want %q, got %q", "DISCORD:g:4", chat)
			}
			if msg != "bocchi ryo" {
				t.Errorf("wrong message recorded: want %q, got %q", "bocchi ryo", msg)
			}
			var p []string
			if err := json.Unmarshal([]byte(parts), &p); err != nil {
				t.Errorf("couldn't unmarshal parts from %q: %v", parts, err)
			}
			if !slices.Equal(p, []string{"text", "image"}) {
				t.Errorf("wrong parts recorded: want %q, got %q from %q", []string{"text", "image"}, p, parts)
			}
			if got, want := time.Unix(0, tm), time.Unix(1, 0); !got.Equal(want) {
				t.Errorf("wrong time: want %v, got %v", want, got)
			}
			var md map[string]any
			if err := json.Unmarshal([]byte(meta), &md); err != nil {
				t.Errorf("couldn't unmarshal metadata from %q: %v", meta, err)
			}
			want := map[string]any{
				"command": "echo",
				"cost":    float64(time.Second.Nanoseconds()),
			}
			if diff := cmp.Diff(want, md); diff != "" {
				t.Errorf("wrong metadata recorded from %q (-want +got):\n%s", meta, diff)
			}
			return nil
		},
	}
	err = sqlitex.ExecuteTransient(conn, `SELECT chat, msg, JSON(parts), time, JSON(meta) FROM spoken`, &opts)
	if err != nil {
		t.Errorf("failed to scan: %v", err)
	}
	if n != 1 {
		t.Errorf("wrong number of rows: want 1, got %d", n)
	}
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	e, err := spoken.Latest(ctx, db, kessoku.ChatKey())
	if err != nil {
		t.Errorf("couldn't find nothing: %v", err)
	}
	if e != nil {
		t.Errorf("found a message before any were recorded: %+v", e)
	}
	msgs := []struct {
		text string
		at   int64
	}{
		{"nijika", 2},
		{"kita", 3},
		{"bocchi", 1},
	}
	for _, m := range msgs {
		if err := spoken.Record(ctx, db, message.Text(kessoku, m.text), time.Unix(m.at, 0), spoken.Meta{User: "abc"}); err != nil {
			t.Fatalf("couldn't record %q: %v", m.text, err)
		}
	}
	other := message.Address{Platform: message.Telegram, ChatID: 4}
	if err := spoken.Record(ctx, db, message.Text(other, "ryo"), time.Unix(10, 0), spoken.Meta{}); err != nil {
		t.Fatal(err)
	}
	e, err = spoken.Latest(ctx, db, kessoku.ChatKey())
	if err != nil {
		t.Fatalf("couldn't find latest: %v", err)
	}
	want := &spoken.Entry{
		Chat:  "DISCORD:g:4",
		Text:  "kita",
		Parts: []string{"text"},
		Time:  time.Unix(3, 0),
		Meta:  spoken.Meta{User: "abc"},
	}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Errorf("wrong entry (-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	for i := range 5 {
		if err := spoken.Record(ctx, db, message.Text(kessoku, "x"), time.Unix(int64(i), 0), spoken.Meta{}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := spoken.Prune(ctx, db, time.Unix(3, 0))
	if err != nil {
		t.Fatalf("couldn't prune: %v", err)
	}
	if n != 3 {
		t.Errorf("wrong number pruned: want 3, got %d", n)
	}
	e, err := spoken.Latest(ctx, db, kessoku.ChatKey())
	if err != nil || e == nil || !e.Time.Equal(time.Unix(4, 0)) {
		t.Errorf("wrong latest after prune: %+v, %v", e, err)
	}
}
