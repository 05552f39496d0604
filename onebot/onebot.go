// Package onebot implements a OneBot v11 forward WebSocket client.
//
// OneBot is the protocol spoken by QQ bot frameworks. The client connects to
// the framework, receives events, and calls API actions over the same
// connection, matching responses to calls by their echo field.
package onebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/chiloven/lukosbot/syncmap"
)

// Conn is a forward WebSocket connection to a OneBot implementation.
type Conn struct {
	conn *websocket.Conn
	// pending holds calls awaiting responses by echo.
	pending *syncmap.Map[string, chan *response]
	echo    atomic.Uint64
	wmu     sync.Mutex
}

// Event is an event pushed by the OneBot implementation.
// Only the fields of message and meta events are decoded; everything else
// is kept in Extra.
type Event struct {
	PostType      string `json:"post_type"`
	MetaEventType string `json:"meta_event_type"`
	// MessageType is "private" or "group" for message events.
	MessageType string `json:"message_type"`
	SubType     string `json:"sub_type"`
	MessageID   int64  `json:"message_id"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id"`
	SelfID      int64  `json:"self_id"`
	// Time is the event time in Unix seconds.
	Time int64 `json:"time"`
	// Message is the message as an array of segments, or as a CQ code
	// string for implementations configured that way.
	Message    jsontext.Value `json:"message"`
	RawMessage string         `json:"raw_message"`
	Sender     Sender         `json:"sender"`

	Extra jsontext.Value `json:",unknown"`
}

// Sender is the sender information attached to message events.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	// Card is the sender's group nickname, if any.
	Card string `json:"card"`
}

// Segment is one segment of a message.
type Segment struct {
	Type string         `json:"type"`
	Data jsontext.Value `json:"data"`
}

// SegmentData holds the data fields of the segment types the bot uses.
type SegmentData struct {
	Text string `json:"text,omitzero"`
	// File is a file name, URL, or base64:// data for images.
	File string `json:"file,omitzero"`
	URL  string `json:"url,omitzero"`
	// ID is the referenced message for reply segments.
	ID string `json:"id,omitzero"`
}

// TextSegment creates a text segment.
func TextSegment(text string) Segment {
	return segment("text", SegmentData{Text: text})
}

// ImageSegment creates an image segment. file may be a URL, a file known to
// the implementation, or base64:// followed by encoded image data.
func ImageSegment(file string) Segment {
	return segment("image", SegmentData{File: file})
}

// ReplySegment creates a segment marking a message as a reply.
func ReplySegment(id int64) Segment {
	return segment("reply", SegmentData{ID: strconv.FormatInt(id, 10)})
}

func segment(typ string, d SegmentData) Segment {
	b, err := json.Marshal(&d)
	if err != nil {
		// Should be impossible.
		panic(fmt.Errorf("onebot: couldn't marshal segment data: %w", err))
	}
	return Segment{Type: typ, Data: b}
}

// Segments decodes the message of an event. A message in CQ code form is
// returned as a single text segment of the raw message.
func (e *Event) Segments() ([]Segment, error) {
	m := e.Message
	if len(m) == 0 || m.Kind() == '"' {
		return []Segment{TextSegment(e.RawMessage)}, nil
	}
	var r []Segment
	if err := json.Unmarshal(m, &r); err != nil {
		return nil, fmt.Errorf("couldn't decode message segments: %w", err)
	}
	return r, nil
}

// Decode decodes the data of a segment.
func (s Segment) Decode() (SegmentData, error) {
	var d SegmentData
	if len(s.Data) == 0 {
		return d, nil
	}
	err := json.Unmarshal(s.Data, &d)
	return d, err
}

type request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type response struct {
	Status  string         `json:"status"`
	RetCode int            `json:"retcode"`
	Data    jsontext.Value `json:"data"`
	Message string         `json:"message"`
	Wording string         `json:"wording"`
	Echo    jsontext.Value `json:"echo"`
}

// APIError is an action that the implementation reported as failed.
type APIError struct {
	Action  string
	RetCode int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onebot %s failed with retcode %d: %s", e.Action, e.RetCode, e.Message)
}

// ErrClosed is returned by calls pending when the connection closes.
var ErrClosed = errors.New("onebot connection closed")

// Connect connects to a OneBot implementation at url, e.g.
// ws://127.0.0.1:3001. If token is not empty, it is sent as a bearer token.
// If the HTTP client is nil, [http.DefaultClient] is used instead.
func Connect(ctx context.Context, client *http.Client, url, token string) (*Conn, error) {
	opts := &websocket.DialOptions{HTTPClient: client}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}
	slog.DebugContext(ctx, "dial OneBot", slog.String("url", url))
	conn, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil && resp.Body != nil {
			b := make([]byte, 1024)
			n, _ := resp.Body.Read(b)
			b = b[:n]
			return nil, fmt.Errorf("couldn't connect to OneBot: %w (%s)", err, b)
		}
		return nil, fmt.Errorf("couldn't connect to OneBot: %w", err)
	}
	// Image payloads can be large.
	conn.SetReadLimit(16 << 20)
	c := &Conn{
		conn:    conn,
		pending: syncmap.New[string, chan *response](),
	}
	return c, nil
}

// Recv gets the next message event. Meta events are logged and skipped,
// and responses to calls are delivered to their callers, so Recv must be
// called in a loop for [Conn.Call] to complete.
//
// Note that the context becoming done during a call to Recv will cause the
// WebSocket connection to close as well.
func (c *Conn) Recv(ctx context.Context) (*Event, error) {
	for {
		_, m, err := c.conn.Read(ctx)
		if err != nil {
			c.fail()
			return nil, err
		}
		var head struct {
			PostType string         `json:"post_type"`
			Echo     jsontext.Value `json:"echo"`
		}
		if err := json.Unmarshal(m, &head, json.RejectUnknownMembers(false)); err != nil {
			return nil, fmt.Errorf("couldn't decode frame %q: %w", m, err)
		}
		if head.PostType == "" && len(head.Echo) != 0 {
			var r response
			if err := json.Unmarshal(m, &r); err != nil {
				return nil, fmt.Errorf("couldn't decode response %q: %w", m, err)
			}
			c.deliver(ctx, &r)
			continue
		}
		var ev Event
		if err := json.Unmarshal(m, &ev); err != nil {
			return nil, fmt.Errorf("couldn't decode event %q: %w", m, err)
		}
		switch ev.PostType {
		case "message", "message_sent":
			return &ev, nil
		case "meta_event":
			slog.DebugContext(ctx, "OneBot meta event", slog.String("type", ev.MetaEventType), slog.Int64("self", ev.SelfID))
		default:
			slog.DebugContext(ctx, "OneBot event ignored", slog.String("post_type", ev.PostType))
		}
	}
}

func (c *Conn) deliver(ctx context.Context, r *response) {
	// Echoes are strings when we send them, but be lenient.
	var echo string
	if r.Echo.Kind() == '"' {
		if err := json.Unmarshal(r.Echo, &echo); err != nil {
			return
		}
	} else {
		echo = string(r.Echo)
	}
	ch, ok := c.pending.Load(echo)
	if !ok {
		slog.WarnContext(ctx, "OneBot response for no call", slog.String("echo", echo))
		return
	}
	c.pending.Delete(echo)
	ch <- r
}

// fail ends all pending calls.
func (c *Conn) fail() {
	for k, ch := range c.pending.All() {
		c.pending.Delete(k)
		close(ch)
	}
}

// Call calls an API action and returns its data.
func (c *Conn) Call(ctx context.Context, action string, params any) (jsontext.Value, error) {
	echo := strconv.FormatUint(c.echo.Add(1), 10)
	b, err := json.Marshal(&request{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("couldn't encode %s call: %w", action, err)
	}
	ch := make(chan *response, 1)
	c.pending.Store(echo, ch)
	defer c.pending.Delete(echo)
	c.wmu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, b)
	c.wmu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("couldn't send %s call: %w", action, err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if r.Status == "failed" || r.RetCode != 0 {
			return nil, &APIError{Action: action, RetCode: r.RetCode, Message: cmpOr(r.Wording, r.Message)}
		}
		return r.Data, nil
	}
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// SendMsg sends a message to a group if group is nonzero, otherwise to the
// user. It returns the sent message ID.
func (c *Conn) SendMsg(ctx context.Context, group, user int64, segs []Segment) (int64, error) {
	var (
		action string
		params any
	)
	if group != 0 {
		action = "send_group_msg"
		params = struct {
			GroupID int64     `json:"group_id"`
			Message []Segment `json:"message"`
		}{group, segs}
	} else {
		action = "send_private_msg"
		params = struct {
			UserID  int64     `json:"user_id"`
			Message []Segment `json:"message"`
		}{user, segs}
	}
	data, err := c.Call(ctx, action, params)
	if err != nil {
		return 0, err
	}
	var r struct {
		MessageID int64 `json:"message_id"`
	}
	if len(data) != 0 && data.Kind() == '{' {
		if err := json.Unmarshal(data, &r, json.RejectUnknownMembers(false)); err != nil {
			return 0, fmt.Errorf("couldn't decode %s result: %w", action, err)
		}
	}
	return r.MessageID, nil
}

// LoginInfo gets the bot's own account.
func (c *Conn) LoginInfo(ctx context.Context) (id int64, nickname string, err error) {
	data, err := c.Call(ctx, "get_login_info", struct{}{})
	if err != nil {
		return 0, "", err
	}
	var r struct {
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, "", fmt.Errorf("couldn't decode login info: %w", err)
	}
	return r.UserID, r.Nickname, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
