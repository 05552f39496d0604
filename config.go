package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/spoken"
	"github.com/chiloven/lukosbot/state"
	"github.com/chiloven/lukosbot/usage"
	"github.com/chiloven/lukosbot/usageimg"
)

// Load loads the bot's configuration from TOML.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	if u := md.Undecoded(); len(u) != 0 {
		slog.WarnContext(ctx, "unknown config keys", slog.Any("keys", u))
	}
	return &cfg, &md, nil
}

// loadConfig loads the file named by the --config flag.
func loadConfig(ctx context.Context, file string) (*Config, *toml.MetaData, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, md, err := Load(ctx, r)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, md, nil
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// SecretFile is the path to a file containing a secret key used to
	// derive userhash keys.
	SecretFile string `toml:"secret"`
	// Prefix is the command prefix. Default is /.
	Prefix string `toml:"prefix"`
	// ReplyUnknown makes the bot answer unknown commands with suggestions.
	ReplyUnknown bool `toml:"reply_unknown"`
	// Owner is the table of metadata about the owner.
	Owner Owner `toml:"owner"`
	// HTTP is the API server configuration.
	HTTP HTTPCfg `toml:"http"`
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// Usage configures help output.
	Usage UsageCfg `toml:"usage"`
	// Rate is the per-chat limit on inbound messages.
	Rate Rate `toml:"rate"`
	// Dispatch sizes the message dispatcher.
	Dispatch DispatchCfg `toml:"dispatch"`
	// IP configures the ip command's lookup service.
	IP IPCfg `toml:"ip"`
	// Discord, Telegram, and OneBot configure platform connections.
	// A platform is enabled when its table is present.
	Discord  DiscordCfg  `toml:"discord"`
	Telegram TelegramCfg `toml:"telegram"`
	OneBot   OneBotCfg   `toml:"onebot"`
	// Commands enables or disables built-in commands by name.
	// Commands not listed are enabled.
	Commands map[string]bool `toml:"commands"`
}

// Owner is metadata about the bot owner.
type Owner struct {
	// Name is the name of the owner. It does not need to be a username.
	Name string `toml:"name"`
	// Contact describes owner contact information.
	Contact string `toml:"contact"`
	// IDs are the owner's accounts as PLATFORM:id, e.g. TELEGRAM:12345.
	IDs []string `toml:"ids"`
}

// HTTPCfg is the configuration of the HTTP API.
type HTTPCfg struct {
	// Listen is the address to serve on. If empty, there is no API.
	Listen string `toml:"listen"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// State is the preference store: an SQLite DSN, a Badger directory,
	// or a YAML file, according to StateKind.
	State string `toml:"state"`
	// StateKind is sqlite, badger, or yaml. Default is sqlite.
	StateKind string `toml:"state_kind"`
	// KVFlag is a Badger superflag string applied to the state database.
	KVFlag  string `toml:"kvflag"`
	Privacy string `toml:"privacy"`
	Spoken  string `toml:"spoken"`
	// SpokenRetention is the age in seconds after which spoken history is
	// pruned. Zero keeps it forever.
	SpokenRetention float64 `toml:"spoken_retention"`
}

// UsageCfg is the configuration of usage output.
type UsageCfg struct {
	// Mode is the default delivery of help: auto, text, or img.
	Mode string `toml:"mode"`
	// Font is a TrueType or OpenType font for text the Go fonts lack.
	Font string `toml:"font"`
	// MaxWidth and MinWidth bound image width in pixels.
	MaxWidth int `toml:"max_width"`
	MinWidth int `toml:"min_width"`
	// Size is the body text size in pixels.
	Size float64 `toml:"size"`
	// Background and Foreground are colors as #rrggbb.
	Background string `toml:"background"`
	Foreground string `toml:"foreground"`
}

// DispatchCfg sizes the message dispatcher.
type DispatchCfg struct {
	Lanes   int `toml:"lanes"`
	Backlog int `toml:"backlog"`
}

// IPCfg configures IP lookup.
type IPCfg struct {
	// API is the geoip service base URL.
	API string `toml:"api"`
}

// DiscordCfg is the configuration for connecting to Discord.
type DiscordCfg struct {
	Token string `toml:"token"`
	// Rate is the send rate limit.
	Rate Rate `toml:"rate"`
}

// TelegramCfg is the configuration for connecting to Telegram.
type TelegramCfg struct {
	Token string `toml:"token"`
	// API is the Bot API server. Default is the public one.
	API string `toml:"api"`
	// Timeout is the long polling timeout in seconds. Default is 30.
	Timeout float64 `toml:"timeout"`
	Rate    Rate    `toml:"rate"`
}

// OneBotCfg is the configuration for connecting to a OneBot implementation.
type OneBotCfg struct {
	// URL is the forward WebSocket address, e.g. ws://127.0.0.1:3001.
	URL   string `toml:"url"`
	Token string `toml:"token"`
	Rate  Rate   `toml:"rate"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

// limiter creates a limiter for r, or nil if r is unset.
func (r Rate) limiter() *rate.Limiter {
	if r.Every <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(fseconds(r.Every)), max(r.Num, 1))
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.SecretFile,
		&cfg.Prefix,
		&cfg.Owner.Name,
		&cfg.Owner.Contact,
		&cfg.HTTP.Listen,
		&cfg.DB.State,
		&cfg.DB.StateKind,
		&cfg.DB.KVFlag,
		&cfg.DB.Privacy,
		&cfg.DB.Spoken,
		&cfg.Usage.Mode,
		&cfg.Usage.Font,
		&cfg.IP.API,
		&cfg.Discord.Token,
		&cfg.Telegram.Token,
		&cfg.Telegram.API,
		&cfg.OneBot.URL,
		&cfg.OneBot.Token,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for i, s := range cfg.Owner.IDs {
		cfg.Owner.IDs[i] = os.Expand(s, expand)
	}
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// loadSecret reads the secret key and derives the userhash key from it.
// With no secret file, userhashes use a fixed key and a warning is logged.
func loadSecret(ctx context.Context, file string) ([]byte, error) {
	if file == "" {
		slog.WarnContext(ctx, "no secret configured; userhashes are predictable")
		return domainkey(make([]byte, 64), []byte("lukosbot"), []byte("userhash")), nil
	}
	k, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("couldn't read secret key: %w", err)
	}
	return domainkey(make([]byte, 64), k, []byte("userhash")), nil
}

// domainkey fills o with a key derived from k for the given domain. Panics if
// a key cannot be expanded.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}

// dbs holds the opened databases.
type dbs struct {
	state state.Store
	// kv is the Badger database when the state store uses one.
	kv *badger.DB
	// pools are the distinct SQLite pools to close.
	pools []*sqlitex.Pool

	priv  *sqlitex.Pool
	spoke *sqlitex.Pool
}

// pool opens an SQLite pool, reusing one already opened for the same DSN.
func (d *dbs) pool(ctx context.Context, opened map[string]*sqlitex.Pool, dsn, what string) (*sqlitex.Pool, error) {
	if p := opened[dsn]; p != nil {
		slog.DebugContext(ctx, "db shared", slog.String("db", what), slog.String("path", dsn))
		return p, nil
	}
	slog.DebugContext(ctx, "db", slog.String("db", what), slog.String("path", dsn))
	p, err := sqlitex.NewPool(dsn, sqlitex.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s db: %w", what, err)
	}
	opened[dsn] = p
	d.pools = append(d.pools, p)
	return p, nil
}

func loadDBs(ctx context.Context, cfg DBCfg) (d *dbs, err error) {
	d = new(dbs)
	defer func() {
		if err != nil {
			d.Close()
		}
	}()
	opened := make(map[string]*sqlitex.Pool)
	if cfg.State == "" {
		return nil, errors.New("no state db configured")
	}
	switch k := strings.ToLower(cfg.StateKind); k {
	case "", "sqlite":
		p, err := d.pool(ctx, opened, cfg.State, "state")
		if err != nil {
			return d, err
		}
		if err := state.InitSQLite(ctx, p); err != nil {
			return d, err
		}
		d.state = state.OpenSQLite(p)
	case "badger":
		slog.DebugContext(ctx, "using badger state", slog.String("path", cfg.State), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.State)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		d.kv, err = badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return d, fmt.Errorf("couldn't open state db: %w", err)
		}
		d.state = state.OpenBadger(d.kv)
	case "yaml":
		slog.DebugContext(ctx, "using yaml state", slog.String("path", cfg.State))
		d.state, err = state.OpenYAML(cfg.State)
		if err != nil {
			return d, err
		}
	default:
		return d, fmt.Errorf("unknown state_kind %q; use sqlite, badger, or yaml", k)
	}

	if cfg.Privacy != "" {
		d.priv, err = d.pool(ctx, opened, cfg.Privacy, "privacy")
		if err != nil {
			return d, err
		}
		if err := privacy.Init(ctx, d.priv); err != nil {
			return d, err
		}
	}
	if cfg.Spoken != "" {
		d.spoke, err = d.pool(ctx, opened, cfg.Spoken, "spoken history")
		if err != nil {
			return d, err
		}
		if err := spoken.Init(ctx, d.spoke); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Close closes all databases.
func (d *dbs) Close() error {
	var errs []error
	for _, p := range d.pools {
		errs = append(errs, p.Close())
	}
	if d.kv != nil {
		errs = append(errs, d.kv.Close())
	}
	return errors.Join(errs...)
}

// style builds the usage image style.
func (cfg *UsageCfg) style() (usageimg.Style, error) {
	s := usageimg.DefaultStyle()
	if cfg.MaxWidth != 0 {
		s.MaxWidth = cfg.MaxWidth
	}
	if cfg.MinWidth != 0 {
		s.MinWidth = cfg.MinWidth
	}
	if cfg.Size > 0 {
		k := cfg.Size / s.Body.Size
		s.Title.Size *= k
		s.Heading.Size *= k
		s.Body.Size = cfg.Size
		s.Code.Size = cfg.Size
	}
	var err error
	if cfg.Background != "" {
		if s.Background, err = parseColor(cfg.Background); err != nil {
			return s, fmt.Errorf("bad usage background: %w", err)
		}
	}
	if cfg.Foreground != "" {
		if s.Foreground, err = parseColor(cfg.Foreground); err != nil {
			return s, fmt.Errorf("bad usage foreground: %w", err)
		}
	}
	if cfg.Font != "" {
		s.Fallback, err = usageimg.LoadFont(cfg.Font)
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

// mode parses the default usage mode.
func (cfg *UsageCfg) mode() (usage.Mode, error) {
	var m usage.Mode
	if cfg.Mode == "" {
		return usage.ModeAuto, nil
	}
	err := m.UnmarshalText([]byte(cfg.Mode))
	return m, err
}

// parseColor parses #rrggbb.
func parseColor(s string) (color.RGBA, error) {
	var c color.RGBA
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return c, fmt.Errorf("color %q is not #rrggbb", s)
	}
	_, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	if err != nil {
		return c, fmt.Errorf("color %q is not #rrggbb: %w", s, err)
	}
	c.A = 0xff
	return c, nil
}
