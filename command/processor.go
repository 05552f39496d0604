package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/metrics"
)

// DefaultPrefix is the command prefix used when a bot has none.
const DefaultPrefix = "/"

// Processor runs commands found in inbound messages.
type Processor struct {
	// Bot supplies the prefix, logger, metrics, and command usage.
	Bot        *Bot
	Dispatcher *Dispatcher
	// ReplyUnknown makes the processor answer unknown commands with
	// suggestions. Otherwise they are ignored.
	ReplyUnknown bool
}

// CutPrefix reports whether s, after leading space, begins with prefix and
// returns the text after it. Full-width forms match their narrow
// equivalents in the prefix only, so ／help is a command when the prefix is
// /. The rest of s is returned exactly as written.
func CutPrefix(s, prefix string) (string, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	want := width.Fold.String(prefix)
	for i, r := range s {
		if want == "" {
			return s[i:], true
		}
		rest, ok := strings.CutPrefix(want, width.Fold.String(string(r)))
		if !ok {
			return "", false
		}
		want = rest
	}
	return "", want == ""
}

// Handle runs the command in a message, if there is one, and returns the
// messages the command sent.
func (p *Processor) Handle(ctx context.Context, in *message.Inbound) []message.Outbound {
	line, ok := CutPrefix(in.Text(), p.Bot.prefix())
	if !ok || strings.TrimSpace(line) == "" {
		return nil
	}
	var out []message.Outbound
	src := ForInbound(in, func(m message.Outbound) { out = append(out, m) })
	p.Run(ctx, src, line)
	return out
}

// Run executes a command line without its prefix for src and reports
// failures to it.
func (p *Processor) Run(ctx context.Context, src *Source, line string) {
	log := p.Bot.Log
	m := &p.Bot.Metrics
	var name string
	if f := strings.Fields(line); len(f) > 0 {
		name = f[0]
	}
	start := time.Now()
	_, err := p.Dispatcher.Execute(ctx, line, src)
	if err == nil {
		metrics.Observe(m.CommandLatency, time.Since(start).Seconds(), name)
		metrics.Observe(m.CommandCount, 1, name, "ok")
		log.InfoContext(ctx, "command", slog.String("command", name), slog.Any("source", src))
		return
	}

	var (
		unk *dispatch.UnknownCommandError
		syn *dispatch.SyntaxError
		hnd *dispatch.HandlerError
	)
	switch {
	case errors.As(err, &unk):
		metrics.Observe(m.CommandCount, 1, "", "unknown")
		if p.ReplyUnknown {
			src.Reply(p.unknown(unk))
		}
	case errors.As(err, &syn):
		metrics.Observe(m.SyntaxErrors, 1, syn.Command)
		metrics.Observe(m.CommandCount, 1, syn.Command, "syntax")
		log.InfoContext(ctx, "command syntax error",
			slog.String("command", syn.Command),
			slog.Int("cursor", syn.Cursor),
			slog.Any("err", syn.Err),
		)
		if errors.Is(syn, dispatch.ErrIncomplete) && p.Bot.ShowUsage(ctx, src, syn.Command) {
			return
		}
		src.Reply(syn.Context() + "\n" + syn.Err.Error())
	case errors.As(err, &hnd):
		metrics.Observe(m.HandlerFailures, 1, hnd.Command)
		metrics.Observe(m.CommandCount, 1, hnd.Command, "failed")
		metrics.Observe(m.CommandLatency, time.Since(start).Seconds(), hnd.Command)
		// The dispatcher already logged the failure.
		src.Reply("Command execution failed: " + hnd.Command)
	default:
		log.ErrorContext(ctx, "unexpected dispatch error", slog.Any("err", err))
	}
}

func (p *Processor) unknown(err *dispatch.UnknownCommandError) string {
	prefix := p.Bot.prefix()
	var b strings.Builder
	fmt.Fprintf(&b, "Unknown command: %s%s", prefix, err.Name)
	var sugg []string
	for _, s := range err.Suggestions {
		if c, ok := p.Bot.Commands.Get(s); ok && IsHidden(c) {
			continue
		}
		sugg = append(sugg, prefix+s)
	}
	if len(sugg) > 0 {
		fmt.Fprintf(&b, "\nDid you mean: %s?", strings.Join(sugg, ", "))
	}
	fmt.Fprintf(&b, "\nUse %shelp to list commands.", prefix)
	return b.String()
}
