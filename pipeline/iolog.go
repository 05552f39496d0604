package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/spoken"
	"github.com/chiloven/lukosbot/userhash"
)

// ClipRunes is the most runes of message text that IOLog writes.
const ClipRunes = 160

// IOLog is a Processor that logs messages passing through another.
type IOLog struct {
	Log  *slog.Logger
	Next Processor
	// Prefix is the command prefix. Replies to commands are recorded with
	// the command name.
	Prefix string
	// Spoken records outbound messages. If nil, nothing is recorded.
	Spoken *sqlitex.Pool
	// Privacy withholds the text of listed users from logs.
	Privacy *privacy.List
	// Hasher obscures sender IDs in logs and records. If nil, sender IDs
	// are omitted.
	Hasher *userhash.Hasher
}

func (l *IOLog) Handle(ctx context.Context, in *message.Inbound) []message.Outbound {
	start := time.Now()
	var who string
	if l.Hasher != nil {
		who = l.Hasher.Sender(new(userhash.Hash), in, start).String()
	}
	text := in.Text()
	if l.private(ctx, in) {
		text = "(private)"
	}
	l.Log.InfoContext(ctx, "recv",
		slog.String("chat", in.Addr.ChatKey()),
		slog.String("sender", who),
		slog.String("text", Clip(text, ClipRunes)),
		slog.Int("parts", len(in.Parts)),
	)
	out := l.Next.Handle(ctx, in)
	cost := time.Since(start)
	meta := spoken.Meta{Command: l.command(in), User: who, Cost: cost.Nanoseconds()}
	for _, m := range out {
		l.Log.InfoContext(ctx, "send",
			slog.String("chat", m.Addr.ChatKey()),
			slog.String("text", Clip(m.Text(), ClipRunes)),
			slog.Int("parts", len(m.Parts)),
			slog.Duration("cost", cost),
		)
		if l.Spoken == nil {
			continue
		}
		if err := spoken.Record(ctx, l.Spoken, m, time.Now(), meta); err != nil {
			l.Log.ErrorContext(ctx, "couldn't record sent message", slog.String("chat", m.Addr.ChatKey()), slog.Any("err", err))
		}
	}
	return out
}

func (l *IOLog) private(ctx context.Context, in *message.Inbound) bool {
	if l.Privacy == nil || in.Sender == message.UnknownSender() {
		return false
	}
	err := l.Privacy.Check(ctx, privacy.Key(in.Addr.Platform, in.Sender.ID))
	switch {
	case err == nil:
		return false
	case errors.Is(err, privacy.ErrPrivate):
		return true
	default:
		// Withhold the text when we can't tell.
		l.Log.ErrorContext(ctx, "couldn't check privacy list", slog.Any("err", err))
		return true
	}
}

// command returns the name of the command in a message, if it has one.
func (l *IOLog) command(in *message.Inbound) string {
	if l.Prefix == "" {
		return ""
	}
	s, ok := strings.CutPrefix(strings.TrimSpace(in.Text()), l.Prefix)
	if !ok {
		return ""
	}
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Clip shortens s to at most n runes, marking the cut with an ellipsis.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	k := 0
	for i := range s {
		if k == n-1 {
			return s[:i] + "…"
		}
		k++
	}
	return s
}
