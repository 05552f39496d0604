package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/chiloven/lukosbot/command"
	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/metrics"
	"github.com/chiloven/lukosbot/pipeline"
	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/spoken"
	"github.com/chiloven/lukosbot/state"
	"github.com/chiloven/lukosbot/userhash"
	"github.com/chiloven/lukosbot/usageimg"
)

// Robot is the running bot: commands, the message pipeline, and the
// platform connections feeding it.
type Robot struct {
	log *slog.Logger
	// bot is the state visible to commands.
	bot *command.Bot
	// proc runs commands.
	proc *command.Processor
	// iolog wraps proc with message logging and spoken history.
	iolog *pipeline.IOLog
	// hub routes replies to platforms.
	hub *pipeline.Hub
	// dispatch runs the pipeline over inbound messages.
	dispatch *pipeline.Dispatcher
	metrics  *metrics.Metrics
	dbs      *dbs
	// retention is how long spoken history is kept, or zero to keep it.
	retention time.Duration
	// platforms are the enabled platform connections.
	platforms []platform
}

// platform is a connection to a chat backend.
type platform interface {
	// Platform names the backend.
	Platform() message.Platform
	// Run receives messages and submits them until ctx is done.
	Run(ctx context.Context, submit func(*message.Inbound) bool) error
	pipeline.Sender
}

// New creates a robot from its configuration. Platforms are connected by
// [Robot.Run].
func New(ctx context.Context, cfg *Config, md *toml.MetaData, log *slog.Logger, m *metrics.Metrics) (*Robot, error) {
	key, err := loadSecret(ctx, cfg.SecretFile)
	if err != nil {
		return nil, err
	}
	d, err := loadDBs(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	robo, err := newRobot(ctx, cfg, d, key, log, m)
	if err != nil {
		d.Close()
		return nil, err
	}
	if md != nil {
		if err := robo.addPlatforms(ctx, cfg, md); err != nil {
			d.Close()
			return nil, err
		}
	}
	return robo, nil
}

func newRobot(ctx context.Context, cfg *Config, d *dbs, key []byte, log *slog.Logger, m *metrics.Metrics) (*Robot, error) {
	style, err := cfg.Usage.style()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.Usage.mode()
	if err != nil {
		return nil, err
	}
	usageMode := command.NewUsageMode(mode)
	prefs := new(state.Registry)
	prefs.Add(usageMode)
	var priv *privacy.List
	if d.priv != nil {
		priv, err = privacy.Open(ctx, d.priv)
		if err != nil {
			return nil, fmt.Errorf("couldn't open privacy list: %w", err)
		}
	}
	bot := &command.Bot{
		Log:      log,
		Prefix:   cmp.Or(cfg.Prefix, command.DefaultPrefix),
		Commands: new(command.Registry),
		Renderer: &usageimg.Renderer{Cache: usageimg.NewCache(), Style: style},
		State:    d.state,
		Prefs:    prefs,
		Privacy:  priv,
		IP:       &command.GeoIP{Base: cfg.IP.API},
		Metrics:  *m,
		Owners:   cfg.Owner.IDs,

		UsageMode: usageMode,
	}
	enabled := func(name string) bool {
		on, ok := cfg.Commands[name]
		return !ok || on
	}
	if err := command.AddBuiltins(bot, enabled); err != nil {
		return nil, fmt.Errorf("couldn't add commands: %w", err)
	}
	disp := dispatch.New[*command.Source]()
	disp.Log = log
	n := bot.Commands.RegisterAll(log, disp)
	log.InfoContext(ctx, "commands registered", slog.Int("count", n), slog.String("commands", bot.Commands.List()))
	proc := &command.Processor{Bot: bot, Dispatcher: disp, ReplyUnknown: cfg.ReplyUnknown}
	iolog := &pipeline.IOLog{
		Log:     log,
		Next:    proc,
		Prefix:  bot.Prefix,
		Spoken:  d.spoke,
		Privacy: priv,
		Hasher:  userhash.New(key),
	}
	robo := &Robot{
		log:       log,
		bot:       bot,
		proc:      proc,
		iolog:     iolog,
		hub:       pipeline.NewHub(log, m),
		metrics:   m,
		dbs:       d,
		retention: fseconds(cfg.DB.SpokenRetention),
	}
	chain := &pipeline.Chain{Mode: pipeline.StopOnFirst, Processors: []pipeline.Processor{iolog}, Log: log}
	robo.dispatch = pipeline.NewDispatcher(log, chain, robo.hub.SendBatch, m, pipeline.DispatchConfig{
		Lanes:   cfg.Dispatch.Lanes,
		Backlog: cfg.Dispatch.Backlog,
		Every:   fseconds(cfg.Rate.Every),
		Burst:   cfg.Rate.Num,
	})
	return robo, nil
}

// addPlatforms creates the platform connections named in the config.
func (robo *Robot) addPlatforms(ctx context.Context, cfg *Config, md *toml.MetaData) error {
	if md.IsDefined("discord") {
		p, err := newDiscord(robo.log, cfg.Discord.Token)
		if err != nil {
			return err
		}
		robo.addPlatform(p, cfg.Discord.Rate)
	}
	if md.IsDefined("telegram") {
		robo.addPlatform(newTelegram(robo.log, cfg.Telegram), cfg.Telegram.Rate)
	}
	if md.IsDefined("onebot") {
		robo.addPlatform(newOneBot(robo.log, cfg.OneBot), cfg.OneBot.Rate)
	}
	if len(robo.platforms) == 0 {
		robo.log.WarnContext(ctx, "no platforms configured")
	}
	return nil
}

func (robo *Robot) addPlatform(p platform, r Rate) {
	robo.platforms = append(robo.platforms, p)
	robo.hub.Register(p.Platform(), p, r.limiter())
}

// Run runs the bot and the HTTP API until ctx is done.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	defer robo.dbs.Close()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return robo.dispatch.Run(ctx) })
	for _, p := range robo.platforms {
		group.Go(func() error {
			robo.log.InfoContext(ctx, "platform starting", slog.String("platform", string(p.Platform())))
			err := p.Run(ctx, robo.dispatch.Submit)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", p.Platform(), err)
			}
			return err
		})
	}
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen) })
	}
	if robo.retention > 0 && robo.dbs.spoke != nil {
		group.Go(func() error { return robo.prune(ctx) })
	}
	group.Go(func() error { return robo.forget(ctx) })
	if sw, ok := robo.bot.State.(interface {
		Sweep(context.Context) (int, error)
	}); ok {
		group.Go(func() error { return robo.sweep(ctx, sw.Sweep) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		// If the first error is context canceled, then we are shutting down
		// normally in response to a sigint.
		err = nil
	}
	return err
}

// prune deletes old spoken history every hour.
func (robo *Robot) prune(ctx context.Context) error {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := spoken.Prune(ctx, robo.dbs.spoke, time.Now().Add(-robo.retention))
		if err != nil {
			robo.log.ErrorContext(ctx, "couldn't prune spoken history", slog.Any("err", err))
		} else {
			robo.log.InfoContext(ctx, "pruned spoken history", slog.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// sweep deletes expired preferences every ten minutes.
func (robo *Robot) sweep(ctx context.Context, f func(context.Context) (int, error)) error {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		n, err := f(ctx)
		if err != nil {
			robo.log.ErrorContext(ctx, "couldn't sweep expired state", slog.Any("err", err))
			continue
		}
		robo.log.DebugContext(ctx, "swept expired state", slog.Int("count", n))
	}
}

// forget drops the rate limiters of idle chats every hour.
func (robo *Robot) forget(ctx context.Context) error {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			n := robo.dispatch.PruneLimiters(now)
			robo.log.DebugContext(ctx, "forgot idle rate limiters", slog.Int("count", n))
		}
	}
}
