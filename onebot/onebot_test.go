package onebot_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/chiloven/lukosbot/onebot"
)

// server is a fake OneBot implementation. Each test scripts it through
// serve, which runs with the accepted connection.
func server(t *testing.T, serve func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ryo" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("couldn't accept: %v", err)
			return
		}
		defer c.CloseNow()
		serve(r.Context(), c)
	}))
	t.Cleanup(s.Close)
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func write(ctx context.Context, c *websocket.Conn, s string) error {
	return c.Write(ctx, websocket.MessageText, []byte(s))
}

func connect(t *testing.T, url string) *onebot.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := onebot.Connect(ctx, nil, url, "ryo")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectToken(t *testing.T) {
	url := server(t, func(ctx context.Context, c *websocket.Conn) {})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := onebot.Connect(ctx, nil, url, "seika")
	if err == nil {
		t.Error("connected with a bad token")
	}
}

func TestRecv(t *testing.T) {
	url := server(t, func(ctx context.Context, c *websocket.Conn) {
		write(ctx, c, `{"post_type":"meta_event","meta_event_type":"heartbeat","self_id":1,"time":1}`)
		write(ctx, c, `{"post_type":"notice","notice_type":"group_increase"}`)
		write(ctx, c, `{"post_type":"message","message_type":"group","sub_type":"normal","message_id":55,"user_id":7,"group_id":100,"self_id":1,"time":1700000000,"message":[{"type":"text","data":{"text":"/echo hi"}},{"type":"image","data":{"file":"a.png","url":"https://example.com/a.png"}}],"raw_message":"/echo hi[CQ:image]","sender":{"user_id":7,"nickname":"kita","card":"ikuyo"},"font":0}`)
		c.Read(ctx)
	})
	c := connect(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := c.Recv(ctx)
	require.NoError(t, err)
	if ev.PostType != "message" || ev.MessageType != "group" || ev.GroupID != 100 || ev.UserID != 7 || ev.MessageID != 55 {
		t.Errorf("wrong event: %+v", ev)
	}
	if ev.Sender.Card != "ikuyo" {
		t.Errorf("wrong card: want %q, got %q", "ikuyo", ev.Sender.Card)
	}
	segs, err := ev.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 2)
	if segs[0].Type != "text" || segs[1].Type != "image" {
		t.Errorf("wrong segment types: %q %q", segs[0].Type, segs[1].Type)
	}
	d, err := segs[0].Decode()
	require.NoError(t, err)
	if d.Text != "/echo hi" {
		t.Errorf("wrong text: want %q, got %q", "/echo hi", d.Text)
	}
	d, err = segs[1].Decode()
	require.NoError(t, err)
	if d.URL != "https://example.com/a.png" {
		t.Errorf("wrong url: want %q, got %q", "https://example.com/a.png", d.URL)
	}
}

func TestSegmentsString(t *testing.T) {
	ev := onebot.Event{Message: jsontext.Value(`"hello[CQ:face,id=1]"`), RawMessage: "hello[CQ:face,id=1]"}
	segs, err := ev.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	d, err := segs[0].Decode()
	require.NoError(t, err)
	if d.Text != "hello[CQ:face,id=1]" {
		t.Errorf("wrong text: want %q, got %q", "hello[CQ:face,id=1]", d.Text)
	}
}

func TestSendMsg(t *testing.T) {
	type call struct {
		Action string         `json:"action"`
		Params jsontext.Value `json:"params"`
		Echo   string         `json:"echo"`
	}
	calls := make(chan call, 4)
	url := server(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			_, b, err := c.Read(ctx)
			if err != nil {
				return
			}
			var r call
			if err := json.Unmarshal(b, &r); err != nil {
				t.Errorf("bad call %s: %v", b, err)
				return
			}
			calls <- r
			if r.Action == "send_private_msg" {
				write(ctx, c, `{"status":"failed","retcode":100,"data":null,"message":"no friend","wording":"not a friend","echo":"`+r.Echo+`"}`)
				continue
			}
			// Push an event before the response to check that Recv routes it.
			write(ctx, c, `{"post_type":"message","message_type":"private","user_id":9,"message":[],"raw_message":""}`)
			write(ctx, c, `{"status":"ok","retcode":0,"data":{"message_id":1234},"echo":"`+r.Echo+`"}`)
		}
	})
	c := connect(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events := make(chan *onebot.Event, 4)
	go func() {
		for {
			ev, err := c.Recv(ctx)
			if err != nil {
				return
			}
			events <- ev
		}
	}()

	id, err := c.SendMsg(ctx, 100, 0, []onebot.Segment{onebot.ReplySegment(55), onebot.TextSegment("hi")})
	require.NoError(t, err)
	if id != 1234 {
		t.Errorf("wrong message id: want 1234, got %d", id)
	}
	r := <-calls
	if r.Action != "send_group_msg" {
		t.Errorf("wrong action: want %q, got %q", "send_group_msg", r.Action)
	}
	var params struct {
		GroupID int64 `json:"group_id"`
		Message []struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(r.Params, &params))
	if params.GroupID != 100 {
		t.Errorf("wrong group: want 100, got %d", params.GroupID)
	}
	want := []string{"reply", "text"}
	got := []string{}
	for _, s := range params.Message {
		got = append(got, s.Type)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong segments (-want +got):\n%s", diff)
	}
	if params.Message[0].Data["id"] != "55" || params.Message[1].Data["text"] != "hi" {
		t.Errorf("wrong segment data: %+v", params.Message)
	}
	select {
	case ev := <-events:
		if ev.UserID != 9 {
			t.Errorf("wrong event user: want 9, got %d", ev.UserID)
		}
	case <-ctx.Done():
		t.Error("event not received")
	}

	_, err = c.SendMsg(ctx, 0, 9, []onebot.Segment{onebot.TextSegment("hi")})
	var apiErr *onebot.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("wrong error: %v", err)
	}
	if apiErr.RetCode != 100 || apiErr.Message != "not a friend" {
		t.Errorf("wrong api error: %+v", apiErr)
	}
	if r := <-calls; r.Action != "send_private_msg" {
		t.Errorf("wrong action: want %q, got %q", "send_private_msg", r.Action)
	}
}

func TestCallClosed(t *testing.T) {
	url := server(t, func(ctx context.Context, c *websocket.Conn) {
		c.Read(ctx)
		c.Close(websocket.StatusGoingAway, "bye")
	})
	c := connect(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		for {
			if _, err := c.Recv(ctx); err != nil {
				return
			}
		}
	}()
	_, err := c.Call(ctx, "get_login_info", struct{}{})
	if !errors.Is(err, onebot.ErrClosed) {
		t.Errorf("wrong error: want %v, got %v", onebot.ErrClosed, err)
	}
}
