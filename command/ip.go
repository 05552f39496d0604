package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/usage"
)

// IPInfo is geolocation information about an address.
// Fields the service doesn't know are empty.
type IPInfo struct {
	IP           string  `json:"ip"`
	Country      string  `json:"country"`
	CountryCode  string  `json:"country_code"`
	Region       string  `json:"region"`
	RegionCode   string  `json:"region_code"`
	City         string  `json:"city"`
	PostalCode   string  `json:"postal_code"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Organization string  `json:"organization"`
	Timezone     string  `json:"timezone"`
	ASN          int64   `json:"asn"`
}

func (i *IPInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IP address - %s", i.IP)
	line := func(label, main, extra string) {
		if main == "" {
			return
		}
		fmt.Fprintf(&b, "\n%s: %s", label, main)
		if extra != "" {
			fmt.Fprintf(&b, " (%s)", extra)
		}
	}
	line("Country", i.Country, i.CountryCode)
	line("Region", i.Region, i.RegionCode)
	line("City", i.City, i.PostalCode)
	if i.Latitude != 0 || i.Longitude != 0 {
		fmt.Fprintf(&b, "\nLocation: %g, %g", i.Latitude, i.Longitude)
	}
	line("Timezone", i.Timezone, "")
	line("Organization", i.Organization, "")
	if i.ASN != 0 {
		fmt.Fprintf(&b, "\nASN: AS%d", i.ASN)
	}
	return b.String()
}

// IPLookup finds information about IP addresses.
type IPLookup interface {
	Lookup(ctx context.Context, addr netip.Addr) (*IPInfo, error)
}

// GeoIP is an IPLookup using a geoip HTTP service that responds to
// GET <base>/<address> with a JSON object.
type GeoIP struct {
	// Base is the service URL. If empty, https://api.ip.sb/geoip is used.
	Base string
	// Client is the HTTP client. If nil, a client with a ten second
	// timeout is used.
	Client *http.Client
}

var defaultGeoIPClient = &http.Client{Timeout: 10 * time.Second}

func (g *GeoIP) Lookup(ctx context.Context, addr netip.Addr) (*IPInfo, error) {
	base := g.Base
	if base == "" {
		base = "https://api.ip.sb/geoip"
	}
	client := g.Client
	if client == nil {
		client = defaultGeoIPClient
	}
	u, err := url.JoinPath(base, addr.String())
	if err != nil {
		return nil, fmt.Errorf("couldn't make geoip URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create geoip request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't query %v: %w", req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("couldn't read geoip response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup failed: %s", resp.Status)
	}
	var r IPInfo
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("couldn't decode geoip response: %w", err)
	}
	if r.IP == "" {
		r.IP = addr.String()
	}
	return &r, nil
}

// errNoIPLookup is reported when the bot has no lookup service.
var errNoIPLookup = errors.New("ip lookup isn't configured")

// IP looks up information about an IP address.
//   - address: IPv4 or IPv6 address.
func IP(b *Bot) Command {
	doc := usage.Root("ip").
		Description("Look up an IP address").
		Syntax("Show where an address is", grammar.Arg("address")).
		Param("address", "IPv4 or IPv6 address").
		Example("ip 1.1.1.1", "ip 2606:4700:4700::1111").
		Build()
	root := Literal("ip").
		Executes(func(ctx context.Context, c *Context) (int, error) {
			b.SendUsage(ctx, c.Source, "ip", doc, usage.ForCommand(b.prefix()), usage.ModeText)
			return 1, nil
		}).
		Then(Argument("address", dispatch.Greedy()).
			Executes(func(ctx context.Context, c *Context) (int, error) {
				return lookupIP(ctx, b, c.Source, c.String("address"))
			}),
		)
	return &Tree{Root: root, Doc: doc}
}

func lookupIP(ctx context.Context, b *Bot, src *Source, s string) (int, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		src.Reply(fmt.Sprintf("%q isn't an IP address.", s))
		return 0, nil
	}
	if b.IP == nil {
		return 0, errNoIPLookup
	}
	info, err := b.IP.Lookup(ctx, addr)
	if err != nil {
		b.Log.WarnContext(ctx, "ip lookup failed", slog.String("address", addr.String()), slog.Any("err", err))
		src.Reply("Couldn't look up " + addr.String() + ". Try again later.")
		return 0, nil
	}
	src.Reply(info.String())
	return 1, nil
}
