package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/chiloven/lukosbot/message"
)

// discordLimit is the most runes Discord accepts in one message.
const discordLimit = 2000

// discordFiles is the most files Discord accepts in one message.
const discordFiles = 10

type discordPlatform struct {
	log     *slog.Logger
	session *discordgo.Session
}

func newDiscord(log *slog.Logger, token string) (*discordPlatform, error) {
	if token == "" {
		return nil, errors.New("discord table has no token")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &discordPlatform{log: log, session: session}, nil
}

func (d *discordPlatform) Platform() message.Platform { return message.Discord }

func (d *discordPlatform) Run(ctx context.Context, submit func(*message.Inbound) bool) error {
	remove := d.session.AddHandler(func(s *discordgo.Session, e *discordgo.MessageCreate) {
		if s.State != nil && s.State.User != nil && e.Author != nil && e.Author.ID == s.State.User.ID {
			return
		}
		in := discordInbound(e.Message)
		if in == nil {
			return
		}
		submit(in)
	})
	defer remove()
	d.session.AddHandlerOnce(func(s *discordgo.Session, e *discordgo.Ready) {
		d.log.InfoContext(ctx, "Discord ready", slog.String("user", e.User.Username), slog.Int("guilds", len(e.Guilds)))
	})
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("couldn't connect to Discord: %w", err)
	}
	<-ctx.Done()
	if err := d.session.Close(); err != nil {
		d.log.ErrorContext(ctx, "couldn't close Discord session", slog.Any("err", err))
	}
	return ctx.Err()
}

// discordInbound converts a Discord message. It returns nil for messages
// the bot should not see, like those from bots.
func discordInbound(m *discordgo.Message) *message.Inbound {
	if m.Author == nil || m.Author.Bot {
		return nil
	}
	ch, err := strconv.ParseInt(m.ChannelID, 10, 64)
	if err != nil {
		return nil
	}
	uid, _ := strconv.ParseInt(m.Author.ID, 10, 64)
	id, _ := strconv.ParseInt(m.ID, 10, 64)
	addr := message.Address{Platform: message.Discord, ChatID: ch, Group: m.GuildID != ""}
	in := &message.Inbound{
		Addr: addr,
		Sender: message.Sender{
			ID:          uid,
			Username:    m.Author.Username,
			DisplayName: m.Author.GlobalName,
			Bot:         m.Author.Bot,
		},
		Chat: message.Chat{Addr: addr},
		Meta: message.Meta{
			MessageID: id,
			Timestamp: m.Timestamp.UnixMilli(),
			RawType:   "MESSAGE_CREATE",
		},
	}
	if m.MessageReference != nil {
		in.Meta.ReplyTo, _ = strconv.ParseInt(m.MessageReference.MessageID, 10, 64)
	}
	if m.Content != "" {
		in.Parts = append(in.Parts, message.TextPart{Text: m.Content})
	}
	for _, a := range m.Attachments {
		ref := message.URLRef{URL: a.URL}
		if strings.HasPrefix(a.ContentType, "image/") {
			in.Parts = append(in.Parts, message.Image{Ref: ref, Name: a.Filename, MIME: a.ContentType})
			continue
		}
		in.Parts = append(in.Parts, message.File{Ref: ref, Name: a.Filename, Size: int64(a.Size), MIME: a.ContentType})
	}
	return in
}

func (d *discordPlatform) Send(ctx context.Context, out message.Outbound) error {
	ch := strconv.FormatInt(out.Addr.ChatID, 10)
	for _, m := range discordMessages(out) {
		if _, err := d.session.ChannelMessageSendComplex(ch, m, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// discordMessages lays out an outbound message as Discord messages.
// Text is split to fit Discord's limit, and attachments ride on the last
// message.
func discordMessages(out message.Outbound) []*discordgo.MessageSend {
	var (
		text  []string
		files []*discordgo.File
	)
	for _, p := range out.Parts {
		switch p := p.(type) {
		case message.TextPart:
			text = append(text, p.Text)
		case message.Image:
			text, files = discordMedia(text, files, p.Ref, p.Name, p.MIME, p.Caption)
		case message.File:
			text, files = discordMedia(text, files, p.Ref, p.Name, p.MIME, p.Caption)
		}
	}
	var r []*discordgo.MessageSend
	for _, s := range splitText(strings.Join(text, "\n"), discordLimit) {
		r = append(r, &discordgo.MessageSend{Content: s})
	}
	for len(files) > 0 {
		k := min(len(files), discordFiles)
		if len(r) == 0 || r[len(r)-1].Files != nil {
			r = append(r, new(discordgo.MessageSend))
		}
		r[len(r)-1].Files = files[:k]
		files = files[k:]
	}
	return r
}

func discordMedia(text []string, files []*discordgo.File, ref message.MediaRef, name, mime, caption string) ([]string, []*discordgo.File) {
	if caption != "" {
		text = append(text, caption)
	}
	switch ref := ref.(type) {
	case message.BytesRef:
		files = append(files, &discordgo.File{
			Name:        cmpOr(name, ref.Name, "file"),
			ContentType: cmpOr(mime, ref.MIME),
			Reader:      bytes.NewReader(ref.Bytes),
		})
	case message.URLRef:
		text = append(text, ref.URL)
	case message.PlatformFileRef:
		text = append(text, fmt.Sprintf("(%s file %s)", ref.Platform, ref.FileID))
	}
	return text, files
}

func cmpOr(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// splitText splits s into pieces of at most n runes, preferring to break
// at newlines. Empty text gives no pieces.
func splitText(s string, n int) []string {
	var r []string
	for strings.TrimSpace(s) != "" {
		if utf8.RuneCountInString(s) <= n {
			r = append(r, s)
			break
		}
		// Find the byte offset of the nth rune.
		end := len(s)
		k := 0
		for i := range s {
			if k == n {
				end = i
				break
			}
			k++
		}
		cut := end
		if nl := strings.LastIndexByte(s[:end], '\n'); nl > 0 {
			cut = nl
		}
		r = append(r, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	return r
}
