package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/onebot"
)

type onebotPlatform struct {
	log   *slog.Logger
	url   string
	token string
	// conn is the current connection, or nil while disconnected.
	conn atomic.Pointer[onebot.Conn]
}

func newOneBot(log *slog.Logger, cfg OneBotCfg) *onebotPlatform {
	return &onebotPlatform{log: log, url: cfg.URL, token: cfg.Token}
}

func (o *onebotPlatform) Platform() message.Platform { return message.OneBot }

// Run connects and receives messages, reconnecting when the connection
// drops.
func (o *onebotPlatform) Run(ctx context.Context, submit func(*message.Inbound) bool) error {
	if o.url == "" {
		return errors.New("onebot table has no url")
	}
	wait := time.Second
	for {
		err := o.session(ctx, submit, func() { wait = time.Second })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.ErrorContext(ctx, "OneBot connection lost", slog.Any("err", err), slog.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(2*wait, time.Minute)
	}
}

func (o *onebotPlatform) session(ctx context.Context, submit func(*message.Inbound) bool, connected func()) error {
	conn, err := onebot.Connect(ctx, nil, o.url, o.token)
	if err != nil {
		return err
	}
	defer conn.Close()
	o.conn.Store(conn)
	defer o.conn.CompareAndSwap(conn, nil)
	connected()
	o.log.InfoContext(ctx, "OneBot connected", slog.String("url", o.url))
	for {
		ev, err := conn.Recv(ctx)
		if err != nil {
			return err
		}
		in, err := onebotInbound(ev)
		if err != nil {
			o.log.WarnContext(ctx, "couldn't read OneBot message", slog.Int64("id", ev.MessageID), slog.Any("err", err))
			continue
		}
		if in != nil {
			submit(in)
		}
	}
}

// onebotInbound converts a message event. It returns nil for the bot's own
// messages.
func onebotInbound(ev *onebot.Event) (*message.Inbound, error) {
	if ev.PostType != "message" || (ev.SelfID != 0 && ev.UserID == ev.SelfID) {
		return nil, nil
	}
	segs, err := ev.Segments()
	if err != nil {
		return nil, err
	}
	addr := message.Address{Platform: message.OneBot, ChatID: ev.UserID}
	if ev.MessageType == "group" {
		addr = message.Address{Platform: message.OneBot, ChatID: ev.GroupID, Group: true}
	}
	in := &message.Inbound{
		Addr: addr,
		Sender: message.Sender{
			ID:          ev.UserID,
			Username:    ev.Sender.Nickname,
			DisplayName: cmpOr(ev.Sender.Card, ev.Sender.Nickname),
		},
		Chat: message.Chat{Addr: addr},
		Meta: message.Meta{
			MessageID: ev.MessageID,
			Timestamp: ev.Time * 1000,
			RawType:   ev.PostType + "." + ev.MessageType,
		},
	}
	for _, s := range segs {
		d, err := s.Decode()
		if err != nil {
			return nil, err
		}
		switch s.Type {
		case "text":
			in.Parts = append(in.Parts, message.TextPart{Text: d.Text})
		case "image":
			var ref message.MediaRef = message.PlatformFileRef{Platform: message.OneBot, FileID: d.File}
			if d.URL != "" {
				ref = message.URLRef{URL: d.URL}
			}
			in.Parts = append(in.Parts, message.Image{Ref: ref, Name: d.File})
		case "file":
			in.Parts = append(in.Parts, message.File{Ref: message.PlatformFileRef{Platform: message.OneBot, FileID: d.File}, Name: d.File})
		case "reply":
			in.Meta.ReplyTo, _ = strconv.ParseInt(d.ID, 10, 64)
		}
	}
	return in, nil
}

// errOneBotDown is returned when sending while disconnected.
var errOneBotDown = errors.New("not connected to OneBot")

func (o *onebotPlatform) Send(ctx context.Context, out message.Outbound) error {
	conn := o.conn.Load()
	if conn == nil {
		return errOneBotDown
	}
	segs := onebotSegments(out)
	if len(segs) == 0 {
		return nil
	}
	var group, user int64
	if out.Addr.Group {
		group = out.Addr.ChatID
	} else {
		user = out.Addr.ChatID
	}
	_, err := conn.SendMsg(ctx, group, user, segs)
	return err
}

// onebotSegments converts an outbound message to segments of a single
// OneBot message.
func onebotSegments(out message.Outbound) []onebot.Segment {
	var segs []onebot.Segment
	text := func(s string) {
		if s == "" {
			return
		}
		if len(segs) != 0 {
			s = "\n" + s
		}
		segs = append(segs, onebot.TextSegment(s))
	}
	for _, p := range out.Parts {
		switch p := p.(type) {
		case message.TextPart:
			text(p.Text)
		case message.Image:
			text(p.Caption)
			switch ref := p.Ref.(type) {
			case message.BytesRef:
				segs = append(segs, onebot.ImageSegment("base64://"+base64.StdEncoding.EncodeToString(ref.Bytes)))
			case message.URLRef:
				segs = append(segs, onebot.ImageSegment(ref.URL))
			case message.PlatformFileRef:
				segs = append(segs, onebot.ImageSegment(ref.FileID))
			}
		case message.File:
			text(p.Caption)
			switch ref := p.Ref.(type) {
			case message.URLRef:
				text(ref.URL)
			default:
				// OneBot has no file segment for sending.
				text("(file " + p.Name + ")")
			}
		}
	}
	return segs
}
