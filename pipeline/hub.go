package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/metrics"
)

// Sender delivers outbound messages to one platform.
type Sender interface {
	Send(ctx context.Context, out message.Outbound) error
}

// SenderFunc is a function implementing [Sender].
type SenderFunc func(ctx context.Context, out message.Outbound) error

func (f SenderFunc) Send(ctx context.Context, out message.Outbound) error {
	return f(ctx, out)
}

// ErrNoSender is returned when a message is for a platform with no sender.
var ErrNoSender = errors.New("no sender for platform")

// Hub routes outbound messages to the sender for their platform.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	senders map[message.Platform]route
}

type route struct {
	s   Sender
	lim *rate.Limiter
}

// NewHub creates an empty hub. m may be nil.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if m == nil {
		m = new(metrics.Metrics)
	}
	return &Hub{log: log, metrics: m, senders: make(map[message.Platform]route)}
}

// Register sets the sender for a platform. If lim is not nil, sends to the
// platform wait for it.
func (h *Hub) Register(p message.Platform, s Sender, lim *rate.Limiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[p] = route{s: s, lim: lim}
}

// Platforms returns the platforms with registered senders.
func (h *Hub) Platforms() []message.Platform {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := make([]message.Platform, 0, len(h.senders))
	for p := range h.senders {
		r = append(r, p)
	}
	return r
}

// Send delivers one message.
func (h *Hub) Send(ctx context.Context, out message.Outbound) error {
	p := out.Addr.Platform
	h.mu.RLock()
	r, ok := h.senders[p]
	h.mu.RUnlock()
	if !ok {
		metrics.Observe(h.metrics.OutboundCount, 1, string(p), "nosender")
		return fmt.Errorf("%w %s", ErrNoSender, p)
	}
	if out.Empty() {
		return nil
	}
	if r.lim != nil {
		if err := r.lim.Wait(ctx); err != nil {
			metrics.Observe(h.metrics.OutboundCount, 1, string(p), "failed")
			return fmt.Errorf("couldn't wait to send to %s: %w", out.Addr, err)
		}
	}
	if err := r.s.Send(ctx, out); err != nil {
		metrics.Observe(h.metrics.OutboundCount, 1, string(p), "failed")
		return fmt.Errorf("couldn't send to %s: %w", out.Addr, err)
	}
	metrics.Observe(h.metrics.OutboundCount, 1, string(p), "ok")
	return nil
}

// SendBatch delivers messages in order. A failure to send one message is
// logged and does not stop the rest. The result joins all failures.
func (h *Hub) SendBatch(ctx context.Context, out []message.Outbound) error {
	var errs []error
	for i, m := range out {
		if err := h.Send(ctx, m); err != nil {
			h.log.ErrorContext(ctx, "send failed",
				slog.String("chat", m.Addr.ChatKey()),
				slog.Int("index", i),
				slog.Any("err", err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
