package pipeline

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chiloven/lukosbot/deque"
	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/metrics"
	"github.com/chiloven/lukosbot/syncmap"
)

// DefaultLanes is the number of lanes a dispatcher uses by default.
const DefaultLanes = 32

// DefaultBacklog is the number of messages a lane holds by default.
const DefaultBacklog = 256

// DispatchConfig configures a [Dispatcher].
type DispatchConfig struct {
	// Lanes is the number of serial queues. Zero means DefaultLanes.
	Lanes int
	// Backlog is the most messages waiting in one lane. When a lane is
	// full, its oldest message is dropped. Zero means DefaultBacklog.
	Backlog int
	// Every and Burst give the per-chat rate limit for inbound messages.
	// Messages over the limit are dropped. If Every is zero, chats are not
	// limited.
	Every time.Duration
	Burst int
}

// Dispatcher runs a processor over inbound messages.
// Messages from the same chat are handled one at a time in the order they
// were submitted. Messages from different chats may be handled concurrently.
type Dispatcher struct {
	log     *slog.Logger
	proc    Processor
	send    func(ctx context.Context, out []message.Outbound) error
	metrics *metrics.Metrics

	lanes   []*lane
	backlog int

	every    time.Duration
	burst    int
	limiters *syncmap.Map[string, *rate.Limiter]
}

type lane struct {
	mu   sync.Mutex
	q    deque.Deque[*message.Inbound]
	wake chan struct{}
}

// NewDispatcher creates a dispatcher which handles messages with proc and
// delivers the results with send. m may be nil.
func NewDispatcher(log *slog.Logger, proc Processor, send func(ctx context.Context, out []message.Outbound) error, m *metrics.Metrics, cfg DispatchConfig) *Dispatcher {
	n := cfg.Lanes
	if n <= 0 {
		n = DefaultLanes
	}
	lanes := make([]*lane, n)
	for i := range lanes {
		lanes[i] = &lane{wake: make(chan struct{}, 1)}
	}
	if m == nil {
		m = new(metrics.Metrics)
	}
	return &Dispatcher{
		log:      log,
		proc:     proc,
		send:     send,
		metrics:  m,
		lanes:    lanes,
		backlog:  orDefault(cfg.Backlog, DefaultBacklog),
		every:    cfg.Every,
		burst:    max(cfg.Burst, 1),
		limiters: syncmap.New[string, *rate.Limiter](),
	}
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// Lane returns the index of the lane that handles messages for a chat.
func (d *Dispatcher) Lane(addr message.Address) int {
	h := fnv.New32a()
	h.Write([]byte(addr.ChatKey()))
	return int(h.Sum32() % uint32(len(d.lanes)))
}

// Submit queues a message for handling. It reports false if the message
// was dropped by the chat's rate limit. Submit does not block.
func (d *Dispatcher) Submit(in *message.Inbound) bool {
	p := string(in.Addr.Platform)
	metrics.Observe(d.metrics.InboundCount, 1, p)
	if !d.allow(in.Addr) {
		metrics.Observe(d.metrics.DroppedCount, 1, p)
		d.log.Debug("rate limited", slog.String("chat", in.Addr.ChatKey()))
		return false
	}
	l := d.lanes[d.Lane(in.Addr)]
	l.mu.Lock()
	if l.q.Len() >= d.backlog {
		old, _ := l.q.Front()
		l.q = l.q.DropFront(1)
		metrics.Observe(d.metrics.Backlog, -1)
		metrics.Observe(d.metrics.DroppedCount, 1, string(old.Addr.Platform))
		d.log.Warn("lane full, dropped oldest message", slog.String("chat", old.Addr.ChatKey()))
	}
	l.q = l.q.Append(in)
	l.mu.Unlock()
	metrics.Observe(d.metrics.Backlog, 1)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *Dispatcher) allow(addr message.Address) bool {
	if d.every <= 0 {
		return true
	}
	k := addr.ChatKey()
	lim, ok := d.limiters.Load(k)
	if !ok {
		lim, _ = d.limiters.LoadOrStore(k, rate.NewLimiter(rate.Every(d.every), d.burst))
	}
	return lim.Allow()
}

// PruneLimiters forgets the rate limiters of chats that have been idle long
// enough to refill completely as of now. It returns the number forgotten.
func (d *Dispatcher) PruneLimiters(now time.Time) int {
	n := 0
	for k, lim := range d.limiters.All() {
		if lim.TokensAt(now) >= float64(d.burst) {
			d.limiters.Delete(k)
			n++
		}
	}
	return n
}

// Run handles messages until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, l := range d.lanes {
		group.Go(func() error {
			d.drain(ctx, l)
			return nil
		})
	}
	group.Wait()
	return ctx.Err()
}

func (d *Dispatcher) drain(ctx context.Context, l *lane) {
	for {
		l.mu.Lock()
		in, ok := l.q.Front()
		if ok {
			l.q = l.q.DropFront(1)
		}
		l.mu.Unlock()
		if ok {
			metrics.Observe(d.metrics.Backlog, -1)
		} else {
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
				continue
			}
		}
		out := d.proc.Handle(ctx, in)
		if len(out) == 0 {
			continue
		}
		if err := d.send(ctx, out); err != nil {
			d.log.ErrorContext(ctx, "couldn't send replies",
				slog.String("chat", in.Addr.ChatKey()),
				slog.Int("count", len(out)),
				slog.Any("err", err),
			)
		}
	}
}
