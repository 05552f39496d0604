package command

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/chiloven/lukosbot/metrics"
	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/state"
	"github.com/chiloven/lukosbot/usage"
	"github.com/chiloven/lukosbot/usageimg"
)

// Bot is the bot state as is visible to commands.
// Fields other than Log and Commands may be nil, in which case the commands
// that need them report that the feature is unavailable.
type Bot struct {
	Log *slog.Logger
	// Prefix is the command prefix, e.g. "/". If empty, DefaultPrefix is
	// used.
	Prefix   string
	Commands *Registry
	// Renderer draws usage images.
	Renderer *usageimg.Renderer
	// State holds preferences, and Prefs lists the ones users may change.
	State   state.Store
	Prefs   *state.Registry
	Privacy *privacy.List
	IP      IPLookup
	Metrics metrics.Metrics
	// Owners are the users allowed to run operator commands, as
	// PLATFORM:id strings.
	Owners []string
	// UsageMode is the preference for how help is delivered. If nil, help
	// is sent in auto mode.
	UsageMode *state.Definition[usage.Mode]
}

// prefix returns the command prefix in effect.
func (b *Bot) prefix() string {
	return cmp.Or(b.Prefix, DefaultPrefix)
}

// IsOwner reports whether the sender of src is an owner.
func (b *Bot) IsOwner(src *Source) bool {
	t := src.Target()
	return t.HasUser && slices.Contains(b.Owners, privacy.Key(t.Addr.Platform, t.User))
}

// NewUsageMode creates the preference for how help is delivered, with the
// given default.
func NewUsageMode(def usage.Mode) *state.Definition[usage.Mode] {
	return &state.Definition[usage.Mode]{
		Name:        "usage.mode",
		Description: "how command help is sent",
		Preferred:   state.TypeUser,
		Default:     def,
		Parse:       parseMode,
		Format:      usage.Mode.String,
		Suggest:     []string{"auto", "text", "img"},
	}
}

var errUnknownMode = errors.New("mode must be auto, text, or img")

func parseMode(s string) (usage.Mode, error) {
	m := usage.ParseMode(s)
	if m == usage.ModeAuto && !strings.EqualFold(strings.TrimSpace(s), "auto") {
		return 0, errUnknownMode
	}
	return m, nil
}

// usageMode resolves the usage mode preference for src.
func (b *Bot) usageMode(ctx context.Context, src *Source) usage.Mode {
	if b.UsageMode == nil {
		return usage.ModeAuto
	}
	if b.State == nil {
		return b.UsageMode.Default
	}
	m, err := b.UsageMode.Resolve(ctx, b.State, src.Target())
	if err != nil {
		b.Log.WarnContext(ctx, "couldn't resolve usage mode", slog.Any("source", src), slog.Any("err", err))
		return b.UsageMode.Default
	}
	return m
}

// SendUsage renders a command's usage and sends it as text or as an image
// named usage-<name>.png, as the mode selects. If the image can't be
// rendered, the text is sent instead.
func (b *Bot) SendUsage(ctx context.Context, src *Source, name string, n *usage.Node, opts usage.Options, mode usage.Mode) {
	res := usage.Render(n, opts)
	if b.Renderer == nil || !mode.WantsImage(res) {
		src.Reply(res.PlainText())
		return
	}
	start := time.Now()
	img, err := b.Renderer.Render("usage-"+name, res)
	metrics.Observe(b.Metrics.UsageRenderLatency, time.Since(start).Seconds())
	if err != nil {
		b.Log.ErrorContext(ctx, "couldn't render usage image",
			slog.String("command", name),
			slog.Any("err", err),
		)
		src.Reply(res.PlainText() + "\n\n(Couldn't draw the image; here is the text instead.)")
		return
	}
	src.SendImagePNG(img.Filename, img.Bytes)
}

// ShowUsage sends the usage of a registered command as the processor does
// for incomplete input. It reports false if the command has no usage.
func (b *Bot) ShowUsage(ctx context.Context, src *Source, name string) bool {
	c, ok := b.Commands.Get(name)
	if !ok || c.Usage() == nil {
		return false
	}
	b.SendUsage(ctx, src, c.Name(), c.Usage(), usage.ForCommand(b.prefix()), b.usageMode(ctx, src))
	return true
}
