package state_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/state"
)

var dbCount atomic.Int64

func testSQLite(t *testing.T) *state.SQLite {
	t.Helper()
	ctx := context.Background()
	k := dbCount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:test-state-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, state.InitSQLite(ctx, pool))
	// Initializing twice is fine.
	require.NoError(t, state.InitSQLite(ctx, pool))
	return state.OpenSQLite(pool)
}

func testBadger(t *testing.T) *state.Badger {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return state.OpenBadger(db)
}

func testYAML(t *testing.T) *state.YAML {
	t.Helper()
	y, err := state.OpenYAML(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)
	return y
}

func stores(t *testing.T) map[string]state.Store {
	return map[string]state.Store{
		"sqlite": testSQLite(t),
		"badger": testBadger(t),
		"yaml":   testYAML(t),
	}
}

var (
	alice = state.User(message.Discord, 1)
	bob   = state.User(message.Telegram, 1)
	room  = state.Chat(message.Address{Platform: message.OneBot, ChatID: 77, Group: true})
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(ctx, alice, "prefs", "color")
			require.ErrorIs(t, err, state.ErrNotFound)

			require.NoError(t, st.Put(ctx, alice, "prefs", "color", jsontext.Value(`"red"`), time.Time{}))
			require.NoError(t, st.Put(ctx, alice, "prefs", "color", jsontext.Value(`"blue"`), time.Time{}))
			require.NoError(t, st.Put(ctx, alice, "prefs", "size", jsontext.Value(`3`), time.Time{}))
			require.NoError(t, st.Put(ctx, bob, "prefs", "color", jsontext.Value(`"green"`), time.Time{}))
			require.NoError(t, st.Put(ctx, alice, "other", "color", jsontext.Value(`"black"`), time.Time{}))
			require.NoError(t, st.Put(ctx, room, "prefs", "color", jsontext.Value(`"white"`), time.Time{}))

			v, err := st.Get(ctx, alice, "prefs", "color")
			require.NoError(t, err)
			if string(v) != `"blue"` {
				t.Errorf("wrong value: want %q, got %q", `"blue"`, v)
			}

			ns, err := st.Namespace(ctx, alice, "prefs")
			require.NoError(t, err)
			want := map[string]string{"color": `"blue"`, "size": "3"}
			if diff := cmp.Diff(want, strs(ns)); diff != "" {
				t.Errorf("wrong namespace (-want +got):\n%s", diff)
			}

			scan, err := st.Scan(ctx, state.TypeUser, "prefs")
			require.NoError(t, err)
			wantScan := map[string]map[string]string{
				"DISCORD:1":  {"color": `"blue"`, "size": "3"},
				"TELEGRAM:1": {"color": `"green"`},
			}
			got := make(map[string]map[string]string)
			for id, m := range scan {
				got[id] = strs(m)
			}
			if diff := cmp.Diff(wantScan, got); diff != "" {
				t.Errorf("wrong scan (-want +got):\n%s", diff)
			}

			require.NoError(t, st.Delete(ctx, alice, "prefs", "color"))
			require.NoError(t, st.Delete(ctx, alice, "prefs", "color"))
			_, err = st.Get(ctx, alice, "prefs", "color")
			require.ErrorIs(t, err, state.ErrNotFound)
			v, err = st.Get(ctx, alice, "other", "color")
			require.NoError(t, err)
			if string(v) != `"black"` {
				t.Errorf("delete crossed namespaces: got %q", v)
			}
		})
	}
}

func strs(m map[string]jsontext.Value) map[string]string {
	r := make(map[string]string, len(m))
	for k, v := range m {
		r[k] = string(v)
	}
	return r
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Put(ctx, alice, "prefs", "old", jsontext.Value(`1`), time.Now().Add(-time.Minute)))
			require.NoError(t, st.Put(ctx, alice, "prefs", "new", jsontext.Value(`2`), time.Now().Add(time.Hour)))
			_, err := st.Get(ctx, alice, "prefs", "old")
			require.ErrorIs(t, err, state.ErrNotFound)
			v, err := st.Get(ctx, alice, "prefs", "new")
			require.NoError(t, err)
			if string(v) != "2" {
				t.Errorf("wrong value: want %q, got %q", "2", v)
			}
			ns, err := st.Namespace(ctx, alice, "prefs")
			require.NoError(t, err)
			if _, ok := ns["old"]; ok {
				t.Error("expired value listed")
			}
		})
	}
}

func TestYAMLPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")
	y, err := state.OpenYAML(path)
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, y.Put(ctx, room, "prefs", "usage.mode", jsontext.Value(`"img"`), exp))
	require.NoError(t, y.Put(ctx, state.Global(), "prefs", "greeting", jsontext.Value(`{"a": [1, 2]}`), time.Time{}))

	z, err := state.OpenYAML(path)
	require.NoError(t, err)
	var got []state.Entry
	require.NoError(t, z.Dump(ctx, func(e state.Entry) error {
		got = append(got, e)
		return nil
	}))
	want := []state.Entry{
		{Scope: state.Global(), Namespace: "prefs", Key: "greeting", Value: jsontext.Value(`{"a": [1, 2]}`)},
		{Scope: room, Namespace: "prefs", Key: "usage.mode", Value: jsontext.Value(`"img"`), Expires: exp},
	}
	opt := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Errorf("wrong entries after reload (-want +got):\n%s", diff)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	src := testSQLite(t)
	dst := testYAML(t)
	for i := range 5 {
		require.NoError(t, src.Put(ctx, state.User(message.Discord, int64(i)), "prefs", "n", jsontext.Value(strconv.Itoa(i)), time.Time{}))
	}
	n, err := state.Copy(ctx, dst, src)
	require.NoError(t, err)
	if n != 5 {
		t.Errorf("wrong count: want 5, got %d", n)
	}
	v, err := dst.Get(ctx, state.User(message.Discord, 3), "prefs", "n")
	require.NoError(t, err)
	if string(v) != "3" {
		t.Errorf("wrong copied value: want %q, got %q", "3", v)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	st := testSQLite(t)
	require.NoError(t, st.Put(ctx, alice, "prefs", "a", jsontext.Value(`1`), time.Now().Add(-time.Second)))
	require.NoError(t, st.Put(ctx, alice, "prefs", "b", jsontext.Value(`1`), time.Time{}))
	n, err := st.Sweep(ctx)
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("wrong sweep count: want 1, got %d", n)
	}
}

func modeDef() *state.Definition[string] {
	return &state.Definition[string]{
		Name:    "color",
		Default: "none",
		Parse: func(s string) (string, error) {
			if s == "" {
				return "", errors.New("empty color")
			}
			return s, nil
		},
		Validate: func(s string) error {
			if s == "ultraviolet" {
				return errors.New("invisible")
			}
			return nil
		},
	}
}

func TestResolveOrder(t *testing.T) {
	ctx := context.Background()
	st := testYAML(t)
	d := modeDef()
	addr := message.Address{Platform: message.Discord, ChatID: 9, Group: true}
	who := state.For(addr, message.Sender{ID: 4})
	put := func(s state.Scope, v string) {
		t.Helper()
		require.NoError(t, st.Put(ctx, s, state.DefaultNamespace, "color", jsontext.Value(strconv.Quote(v)), time.Time{}))
	}
	check := func(want string) {
		t.Helper()
		got, err := d.Resolve(ctx, st, who)
		require.NoError(t, err)
		if got != want {
			t.Errorf("wrong value: want %q, got %q", want, got)
		}
	}
	check("none")
	put(state.Global(), "global")
	check("global")
	put(state.User(message.Discord, 4), "user")
	check("user")
	put(state.Chat(addr), "chat")
	check("chat")
	// Undecodable values are skipped.
	require.NoError(t, st.Put(ctx, state.Chat(addr), state.DefaultNamespace, "color", jsontext.Value(`17`), time.Time{}))
	check("user")

	// Senders that aren't known don't see user values.
	anon := state.For(addr, message.UnknownSender())
	require.NoError(t, st.Delete(ctx, state.Chat(addr), state.DefaultNamespace, "color"))
	got, err := d.Resolve(ctx, st, anon)
	require.NoError(t, err)
	if got != "global" {
		t.Errorf("wrong anonymous value: want %q, got %q", "global", got)
	}
}

func TestSetClear(t *testing.T) {
	ctx := context.Background()
	st := testSQLite(t)
	d := modeDef()
	d.Scopes = []state.ScopeType{state.TypeChat, state.TypeGlobal}
	d.Preferred = state.TypeUser
	addr := message.Address{Platform: message.Telegram, ChatID: 5}
	who := state.For(addr, message.Sender{ID: 5})

	// User scope isn't allowed, so the chat is used.
	s, err := d.Set(ctx, st, who, "  teal ")
	require.NoError(t, err)
	if diff := cmp.Diff(state.Chat(addr), s); diff != "" {
		t.Errorf("wrong scope (-want +got):\n%s", diff)
	}
	got, err := d.Get(ctx, st, who)
	require.NoError(t, err)
	if got != "teal" {
		t.Errorf("wrong value: want %q, got %q", "teal", got)
	}

	_, err = d.Set(ctx, st, who, "ultraviolet")
	if err == nil {
		t.Error("invalid value accepted")
	}
	_, err = d.Set(ctx, st, who, "   ")
	if err == nil {
		t.Error("unparsable value accepted")
	}

	s, err = d.Clear(ctx, st, who)
	require.NoError(t, err)
	if s != state.Chat(addr) {
		t.Errorf("wrong cleared scope: %v", s)
	}
	got, err = d.Get(ctx, st, who)
	require.NoError(t, err)
	if got != "none" {
		t.Errorf("wrong value after clear: want %q, got %q", "none", got)
	}
}

func TestPreferredScope(t *testing.T) {
	addr := message.Address{Platform: message.OneBot, ChatID: 3, Group: true}
	cases := []struct {
		name      string
		scopes    []state.ScopeType
		preferred state.ScopeType
		sender    message.Sender
		want      state.Scope
	}{
		{"preferred-chat", nil, state.TypeChat, message.Sender{ID: 8}, state.Chat(addr)},
		{"preferred-user", nil, state.TypeUser, message.Sender{ID: 8}, state.User(message.OneBot, 8)},
		{"no-user", nil, state.TypeUser, message.UnknownSender(), state.Chat(addr)},
		{"global-only", []state.ScopeType{state.TypeGlobal}, state.TypeUser, message.Sender{ID: 8}, state.Global()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := modeDef()
			d.Scopes = c.scopes
			d.Preferred = c.preferred
			got, ok := d.PreferredScope(state.For(addr, c.sender))
			if !ok {
				t.Fatal("no scope")
			}
			if got != c.want {
				t.Errorf("wrong scope: want %v, got %v", c.want, got)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	var r state.Registry
	a := modeDef()
	b := &state.Definition[int]{Name: "Alpha", Parse: strconv.Atoi}
	r.Add(a, b)
	if diff := cmp.Diff([]string{"Alpha", "color"}, r.Names()); diff != "" {
		t.Errorf("wrong names (-want +got):\n%s", diff)
	}
	p, ok := r.Find(" ALPHA ")
	if !ok || p.Info().Name != "Alpha" {
		t.Errorf("couldn't find alpha: %v %v", p, ok)
	}
	if _, ok := r.Find("beta"); ok {
		t.Error("found missing pref")
	}
	if ns := p.Info().Namespace; ns != state.DefaultNamespace {
		t.Errorf("wrong namespace: want %q, got %q", state.DefaultNamespace, ns)
	}
}

func TestScopeType(t *testing.T) {
	for _, typ := range []state.ScopeType{state.TypeGlobal, state.TypeUser, state.TypeChat} {
		got, err := state.ParseScopeType(typ.String())
		require.NoError(t, err)
		if got != typ {
			t.Errorf("wrong type: want %v, got %v", typ, got)
		}
	}
	if _, err := state.ParseScopeType("room"); err == nil {
		t.Error("parsed unknown scope type")
	}
}
