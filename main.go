package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/metrics"
	"github.com/chiloven/lukosbot/state"
	"github.com/chiloven/lukosbot/usage"
)

var app = cli.Command{
	Name:  "lukosbot",
	Usage: "Multi-platform command chat bot",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
		&cli.BoolFlag{
			Name:  "console",
			Usage: "Also read commands from standard input",
		},
		&flagOut,
	},
	Commands: []*cli.Command{
		{
			Name:      "exec",
			Usage:     "Run command lines without serving",
			ArgsUsage: "[command line]",
			Action:    cliExec,
		},
		{
			Name:      "usage",
			Usage:     "Render a command's usage",
			ArgsUsage: "<command>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "mode",
					Usage: "Output mode, text or img",
					Value: "text",
				},
			},
			Action: cliUsage,
		},
		{
			Name:  "state",
			Usage: "Move preferences in and out of the state store",
			Commands: []*cli.Command{
				{
					Name:      "export",
					Usage:     "Write all preferences to a YAML file",
					ArgsUsage: "<file>",
					Action:    cliStateExport,
				},
				{
					Name:      "import",
					Usage:     "Add preferences from a YAML file",
					ArgsUsage: "<file>",
					Action:    cliStateImport,
				},
			},
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	log := loggerFromFlags(cmd)
	slog.SetDefault(log)
	cfg, md, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	robo, err := New(ctx, cfg, md, log, newMetrics())
	if err != nil {
		return err
	}
	if cmd.Bool("console") {
		c := &consolePlatform{log: log, in: os.Stdin, out: os.Stdout, dir: cmd.String("out")}
		robo.addPlatform(c, Rate{})
	}
	return robo.Run(ctx, cfg.HTTP.Listen)
}

// offline creates a robot with no platforms for one-shot commands.
func offline(ctx context.Context, cmd *cli.Command) (*Robot, error) {
	log := loggerFromFlags(cmd)
	slog.SetDefault(log)
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, nil, log, newMetrics())
}

func cliExec(ctx context.Context, cmd *cli.Command) error {
	robo, err := offline(ctx, cmd)
	if err != nil {
		return err
	}
	defer robo.dbs.Close()
	c := &consolePlatform{log: robo.log, out: os.Stdout, dir: cmd.String("out")}
	run := func(line string) error {
		for _, m := range robo.iolog.Handle(ctx, consoleInbound(line)) {
			if err := c.Send(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}
	if cmd.Args().Present() {
		return run(strings.Join(cmd.Args().Slice(), " "))
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := run(sc.Text()); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

func cliUsage(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.New("no command named")
	}
	robo, err := offline(ctx, cmd)
	if err != nil {
		return err
	}
	defer robo.dbs.Close()
	c, ok := robo.bot.Commands.Get(name)
	if !ok || c.Usage() == nil {
		return fmt.Errorf("no usage for %q", name)
	}
	res := usage.Render(c.Usage(), usage.ForCommand(robo.bot.Prefix))
	if usage.ParseMode(cmd.String("mode")) != usage.ModeImage {
		fmt.Println(res.PlainText())
		return nil
	}
	img, err := robo.bot.Renderer.Render("usage-"+c.Name(), res)
	if err != nil {
		return err
	}
	out := cmd.String("out")
	if out == "" {
		out = "."
	}
	con := &consolePlatform{log: robo.log, out: os.Stdout, dir: out}
	return con.Send(ctx, message.ImagePNG(consoleAddr, img.Filename, img.Bytes))
}

func cliStateExport(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("no file named")
	}
	robo, err := offline(ctx, cmd)
	if err != nil {
		return err
	}
	defer robo.dbs.Close()
	dst, err := state.OpenYAML(file)
	if err != nil {
		return err
	}
	n, err := state.Copy(ctx, dst, robo.bot.State)
	slog.InfoContext(ctx, "exported", slog.String("file", file), slog.Int("count", n))
	return err
}

func cliStateImport(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("no file named")
	}
	if _, err := os.Stat(file); err != nil {
		return err
	}
	robo, err := offline(ctx, cmd)
	if err != nil {
		return err
	}
	defer robo.dbs.Close()
	src, err := state.OpenYAML(file)
	if err != nil {
		return err
	}
	n, err := state.Copy(ctx, robo.bot.State, src)
	slog.InfoContext(ctx, "imported", slog.String("file", file), slog.Int("count", n))
	return err
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}

	flagOut = cli.StringFlag{
		Name:       "out",
		Usage:      "Directory in which to write images and files",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.IsDir() {
				return errors.New("out must be a directory")
			}
			return nil
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	latency := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}
	return &metrics.Metrics{
		InboundCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "pipeline",
					Name:      "inbound",
					Help:      "Number of messages received.",
				},
				[]string{"platform"},
			),
		),
		DroppedCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "pipeline",
					Name:      "dropped",
					Help:      "Number of received messages dropped by rate limits or full queues.",
				},
				[]string{"platform"},
			),
		),
		CommandCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "commands",
					Name:      "executed",
					Help:      "Number of command lines run, by command and result.",
				},
				[]string{"command", "result"},
			),
		),
		SyntaxErrors: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "commands",
					Name:      "syntax_errors",
					Help:      "Number of command lines that failed to parse.",
				},
				[]string{"command"},
			),
		),
		HandlerFailures: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "commands",
					Name:      "failures",
					Help:      "Number of commands that failed or panicked.",
				},
				[]string{"command"},
			),
		),
		CommandLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   latency,
					Namespace: "lukosbot",
					Subsystem: "commands",
					Name:      "latency",
					Help:      "How long commands take to run in seconds",
				},
				[]string{"command"},
			),
		),
		UsageRenderLatency: metrics.NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   latency,
					Namespace: "lukosbot",
					Subsystem: "usage",
					Name:      "render_latency",
					Help:      "How long it takes to draw a usage image in seconds",
				},
			),
		),
		OutboundCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "lukosbot",
					Subsystem: "pipeline",
					Name:      "outbound",
					Help:      "Number of messages sent, by platform and result.",
				},
				[]string{"platform", "result"},
			),
		),
		Backlog: metrics.NewPromGauge(
			prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "lukosbot",
					Subsystem: "pipeline",
					Name:      "backlog",
					Help:      "Number of messages waiting to be handled.",
				},
			),
		),
	}
}
