package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/pipeline"
	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/spoken"
	"github.com/chiloven/lukosbot/userhash"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func inbound(addr message.Address, text string) *message.Inbound {
	return &message.Inbound{
		Addr:   addr,
		Sender: message.Sender{ID: 7, DisplayName: "nijika"},
		Parts:  []message.Part{message.TextPart{Text: text}},
	}
}

// echo replies with the text of each message.
var echo = pipeline.ProcessorFunc(func(ctx context.Context, in *message.Inbound) []message.Outbound {
	return []message.Outbound{message.Text(in.Addr, in.Text())}
})

func reply(text string) pipeline.Processor {
	return pipeline.ProcessorFunc(func(ctx context.Context, in *message.Inbound) []message.Outbound {
		return []message.Outbound{message.Text(in.Addr, text)}
	})
}

var silent = pipeline.ProcessorFunc(func(ctx context.Context, in *message.Inbound) []message.Outbound { return nil })

var explode = pipeline.ProcessorFunc(func(ctx context.Context, in *message.Inbound) []message.Outbound { panic("kaboom") })

func texts(out []message.Outbound) []string {
	r := make([]string, len(out))
	for i, m := range out {
		r[i] = m.Text()
	}
	return r
}

var here = message.Address{Platform: message.Console, ChatID: 1}

func TestChain(t *testing.T) {
	cases := []struct {
		name  string
		mode  pipeline.Mode
		procs []pipeline.Processor
		want  []string
	}{
		{"empty", pipeline.StopOnFirst, nil, []string{}},
		{"first", pipeline.StopOnFirst, []pipeline.Processor{reply("a"), reply("b")}, []string{"a"}},
		{"skip-silent", pipeline.StopOnFirst, []pipeline.Processor{silent, reply("b")}, []string{"b"}},
		{"collect", pipeline.CollectAll, []pipeline.Processor{reply("a"), silent, reply("b")}, []string{"a", "b"}},
		{"panic-first", pipeline.StopOnFirst, []pipeline.Processor{explode, reply("b")}, []string{"b"}},
		{"panic-collect", pipeline.CollectAll, []pipeline.Processor{reply("a"), explode, reply("b")}, []string{"a", "b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ch := pipeline.Chain{Mode: c.mode, Processors: c.procs, Log: discard()}
			got := texts(ch.Handle(context.Background(), inbound(here, "x")))
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong output (-want +got):\n%s", diff)
			}
		})
	}
}

// collector gathers sent messages.
type collector struct {
	mu  sync.Mutex
	out []message.Outbound
	n   chan struct{}
}

func newCollector() *collector {
	return &collector{n: make(chan struct{}, 1000)}
}

func (c *collector) send(ctx context.Context, out []message.Outbound) error {
	c.mu.Lock()
	c.out = append(c.out, out...)
	c.mu.Unlock()
	for range out {
		c.n <- struct{}{}
	}
	return nil
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for range n {
		select {
		case <-c.n:
		case <-timeout:
			t.Fatalf("timed out waiting for %d messages", n)
		}
	}
}

func (c *collector) byChat() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := make(map[string][]string)
	for _, m := range c.out {
		k := m.Addr.ChatKey()
		r[k] = append(r[k], m.Text())
	}
	return r
}

func TestDispatcherOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	d := pipeline.NewDispatcher(discard(), echo, c.send, nil, pipeline.DispatchConfig{Lanes: 4})
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	const chats, each = 10, 50
	want := make(map[string][]string)
	for i := range each {
		for k := range chats {
			addr := message.Address{Platform: message.Telegram, ChatID: int64(k)}
			s := strconv.Itoa(i)
			require.True(t, d.Submit(inbound(addr, s)))
			want[addr.ChatKey()] = append(want[addr.ChatKey()], s)
		}
	}
	c.wait(t, chats*each)
	if diff := cmp.Diff(want, c.byChat()); diff != "" {
		t.Errorf("wrong messages (-want +got):\n%s", diff)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("wrong error from run: %v", err)
	}
}

func TestDispatcherLane(t *testing.T) {
	d := pipeline.NewDispatcher(discard(), echo, newCollector().send, nil, pipeline.DispatchConfig{})
	a := message.Address{Platform: message.Discord, ChatID: 99, Group: true}
	k := d.Lane(a)
	if k < 0 || k >= pipeline.DefaultLanes {
		t.Errorf("lane %d out of range", k)
	}
	if d.Lane(a) != k {
		t.Error("lane changed")
	}
}

func TestDispatcherRate(t *testing.T) {
	c := newCollector()
	d := pipeline.NewDispatcher(discard(), echo, c.send, nil, pipeline.DispatchConfig{Every: time.Hour, Burst: 2})
	other := message.Address{Platform: message.OneBot, ChatID: 2, Group: true}
	got := []bool{
		d.Submit(inbound(here, "1")),
		d.Submit(inbound(here, "2")),
		d.Submit(inbound(here, "3")),
		d.Submit(inbound(other, "4")),
	}
	want := []bool{true, true, false, true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong admissions (-want +got):\n%s", diff)
	}
}

func TestDispatcherPruneLimiters(t *testing.T) {
	d := pipeline.NewDispatcher(discard(), echo, newCollector().send, nil, pipeline.DispatchConfig{Every: time.Hour, Burst: 2})
	other := message.Address{Platform: message.OneBot, ChatID: 2, Group: true}
	d.Submit(inbound(here, "1"))
	d.Submit(inbound(here, "2"))
	d.Submit(inbound(other, "3"))
	if n := d.PruneLimiters(time.Now()); n != 0 {
		t.Errorf("pruned busy limiters: %d", n)
	}
	if d.Submit(inbound(here, "4")) {
		t.Error("limit reset without pruning")
	}
	if n := d.PruneLimiters(time.Now().Add(3 * time.Hour)); n != 2 {
		t.Errorf("wrong pruned count: want 2, got %d", n)
	}
	if !d.Submit(inbound(here, "5")) {
		t.Error("pruned chat still limited")
	}
}

func TestDispatcherBacklog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCollector()
	d := pipeline.NewDispatcher(discard(), echo, c.send, nil, pipeline.DispatchConfig{Lanes: 1, Backlog: 2})
	for i := range 5 {
		d.Submit(inbound(here, strconv.Itoa(i)))
	}
	go d.Run(ctx)
	c.wait(t, 2)
	want := map[string][]string{here.ChatKey(): {"3", "4"}}
	if diff := cmp.Diff(want, c.byChat()); diff != "" {
		t.Errorf("wrong messages (-want +got):\n%s", diff)
	}
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	h := pipeline.NewHub(discard(), nil)
	var got []string
	h.Register(message.Console, pipeline.SenderFunc(func(ctx context.Context, out message.Outbound) error {
		if out.Text() == "bad" {
			return errors.New("refused")
		}
		got = append(got, out.Text())
		return nil
	}), nil)
	tg := message.Address{Platform: message.Telegram, ChatID: 1}
	err := h.SendBatch(ctx, []message.Outbound{
		message.Text(here, "a"),
		message.Text(tg, "lost"),
		message.Text(here, "bad"),
		message.Text(here, "b"),
	})
	if !errors.Is(err, pipeline.ErrNoSender) {
		t.Errorf("missing sender not reported: %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("send failure not reported: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("wrong sends (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]message.Platform{message.Console}, h.Platforms()); diff != "" {
		t.Errorf("wrong platforms (-want +got):\n%s", diff)
	}
}

func TestClip(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "bocchi", 10, "bocchi"},
		{"exact", "bocchi", 6, "bocchi"},
		{"long", "bocchi the rock", 6, "bocch…"},
		{"runes", "ぼっち・ざ・ろっく", 4, "ぼっち…"},
		{"zero", "bocchi", 0, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := pipeline.Clip(c.in, c.n); got != c.want {
				t.Errorf("wrong clip: want %q, got %q", c.want, got)
			}
		})
	}
}

var dbCount atomic.Int64

func testDB(t *testing.T) *sqlitex.Pool {
	t.Helper()
	ctx := context.Background()
	k := dbCount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:pipeline-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, spoken.Init(ctx, pool))
	require.NoError(t, privacy.Init(ctx, pool))
	return pool
}

func TestIOLog(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	l, err := privacy.Open(ctx, db)
	require.NoError(t, err)
	require.NoError(t, l.Add(ctx, privacy.Key(message.Console, 8)))

	var buf bytes.Buffer
	lg := &pipeline.IOLog{
		Log:     slog.New(slog.NewTextHandler(&buf, nil)),
		Next:    echo,
		Prefix:  "/",
		Spoken:  db,
		Privacy: l,
		Hasher:  userhash.New([]byte("kita")),
	}
	out := lg.Handle(ctx, inbound(here, "/echo secret-public"))
	if diff := cmp.Diff([]string{"/echo secret-public"}, texts(out)); diff != "" {
		t.Errorf("wrong output (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "secret-public") {
		t.Errorf("public text not logged:\n%s", buf.String())
	}
	e, err := spoken.Latest(ctx, db, here.ChatKey())
	require.NoError(t, err)
	require.NotNil(t, e)
	if e.Text != "/echo secret-public" || e.Meta.Command != "echo" || len(e.Meta.User) != 2*userhash.Size {
		t.Errorf("wrong record: %+v", e)
	}

	buf.Reset()
	priv := inbound(here, "hidden-words")
	priv.Sender.ID = 8
	lg.Next = silent
	lg.Handle(ctx, priv)
	if strings.Contains(buf.String(), "hidden-words") {
		t.Errorf("private text logged:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "(private)") {
		t.Errorf("private text not withheld:\n%s", buf.String())
	}
}
