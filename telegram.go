package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/telegram"
)

// telegramLimit is the most runes in one Telegram text message.
const telegramLimit = 4096

// telegramCaption is the most runes in one Telegram caption.
const telegramCaption = 1024

type telegramPlatform struct {
	log     *slog.Logger
	client  *telegram.Client
	timeout time.Duration
}

func newTelegram(log *slog.Logger, cfg TelegramCfg) *telegramPlatform {
	timeout := fseconds(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &telegramPlatform{
		log: log,
		client: &telegram.Client{
			Token: cfg.Token,
			Base:  cfg.API,
			HTTP:  &http.Client{Timeout: timeout + 15*time.Second},
		},
		timeout: timeout,
	}
}

func (t *telegramPlatform) Platform() message.Platform { return message.Telegram }

func (t *telegramPlatform) Run(ctx context.Context, submit func(*message.Inbound) bool) error {
	me, err := t.client.GetMe(ctx)
	if err != nil {
		return err
	}
	t.log.InfoContext(ctx, "Telegram ready", slog.String("user", me.Username), slog.Int64("id", me.ID))
	var offset int64
	wait := time.Second
	for {
		u, err := t.client.GetUpdates(ctx, offset, t.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var terr *telegram.Error
			d := wait
			if errors.As(err, &terr) && terr.RetryAfter > 0 {
				d = terr.RetryAfter
			}
			t.log.ErrorContext(ctx, "couldn't get Telegram updates", slog.Any("err", err), slog.Duration("wait", d))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			wait = min(2*wait, time.Minute)
			continue
		}
		wait = time.Second
		for _, v := range u {
			offset = max(offset, v.UpdateID+1)
			if v.Message == nil {
				continue
			}
			if in := telegramInbound(v.Message); in != nil {
				submit(in)
			}
		}
	}
}

// telegramInbound converts a Telegram message. It returns nil for messages
// from bots.
func telegramInbound(m *telegram.Message) *message.Inbound {
	sender := message.UnknownSender()
	if m.From != nil {
		if m.From.IsBot {
			return nil
		}
		sender = message.Sender{
			ID:          m.From.ID,
			Username:    m.From.Username,
			DisplayName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		}
	}
	addr := message.Address{Platform: message.Telegram, ChatID: m.Chat.ID, Group: m.Chat.Group()}
	in := &message.Inbound{
		Addr:   addr,
		Sender: sender,
		Chat:   message.Chat{Addr: addr, Title: m.Chat.Title},
		Meta: message.Meta{
			MessageID: m.MessageID,
			Timestamp: m.Date * 1000,
			RawType:   "message",
		},
	}
	if m.ReplyTo != nil {
		in.Meta.ReplyTo = m.ReplyTo.MessageID
	}
	if m.Text != "" {
		in.Parts = append(in.Parts, message.TextPart{Text: m.Text})
	}
	if len(m.Photo) != 0 {
		// Sizes are in increasing order.
		p := m.Photo[len(m.Photo)-1]
		in.Parts = append(in.Parts, message.Image{
			Ref:     message.PlatformFileRef{Platform: message.Telegram, FileID: p.FileID},
			Caption: m.Caption,
		})
	}
	if d := m.Document; d != nil {
		in.Parts = append(in.Parts, message.File{
			Ref:     message.PlatformFileRef{Platform: message.Telegram, FileID: d.FileID},
			Name:    d.FileName,
			Size:    d.FileSize,
			MIME:    d.MIMEType,
			Caption: m.Caption,
		})
	}
	return in
}

func (t *telegramPlatform) Send(ctx context.Context, out message.Outbound) error {
	chat := out.Addr.ChatID
	parts := out.Parts
	for i := 0; i < len(parts); i++ {
		switch p := parts[i].(type) {
		case message.TextPart:
			// Attach short text to the media after it.
			if out.Hints.PreferCaption && i+1 < len(parts) && utf8.RuneCountInString(p.Text) <= telegramCaption {
				switch next := parts[i+1].(type) {
				case message.Image:
					if next.Caption == "" {
						next.Caption = p.Text
						if err := t.sendMedia(ctx, chat, "photo", next.Ref, next.Name, next.Caption); err != nil {
							return err
						}
						i++
						continue
					}
				case message.File:
					if next.Caption == "" {
						next.Caption = p.Text
						if err := t.sendMedia(ctx, chat, "document", next.Ref, next.Name, next.Caption); err != nil {
							return err
						}
						i++
						continue
					}
				}
			}
			for _, s := range splitText(p.Text, telegramLimit) {
				if _, err := t.client.SendMessage(ctx, chat, s, 0); err != nil {
					return err
				}
			}
		case message.Image:
			if err := t.sendMedia(ctx, chat, "photo", p.Ref, p.Name, p.Caption); err != nil {
				return err
			}
		case message.File:
			if err := t.sendMedia(ctx, chat, "document", p.Ref, p.Name, p.Caption); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *telegramPlatform) sendMedia(ctx context.Context, chat int64, kind string, ref message.MediaRef, name, caption string) error {
	var f telegram.InputFile
	switch ref := ref.(type) {
	case message.BytesRef:
		f = telegram.InputFile{Name: cmpOr(name, ref.Name), Data: ref.Bytes}
	case message.URLRef:
		f = telegram.InputFile{Ref: ref.URL}
	case message.PlatformFileRef:
		if ref.Platform != message.Telegram {
			_, err := t.client.SendMessage(ctx, chat, cmpOr(caption, "(file from "+string(ref.Platform)+")"), 0)
			return err
		}
		f = telegram.InputFile{Ref: ref.FileID}
	default:
		return nil
	}
	var err error
	if kind == "photo" {
		_, err = t.client.SendPhoto(ctx, chat, f, caption)
	} else {
		_, err = t.client.SendDocument(ctx, chat, f, caption)
	}
	return err
}
