// Package pipeline moves messages between platform adapters and processors.
//
// Inbound messages are submitted to a [Dispatcher], which handles messages
// from each chat in order while running different chats concurrently.
// Processors turn each inbound message into outbound messages, and a [Hub]
// delivers those to the adapter for their platform.
package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/chiloven/lukosbot/message"
)

// Processor handles an inbound message and returns the messages to send in
// response.
type Processor interface {
	Handle(ctx context.Context, in *message.Inbound) []message.Outbound
}

// ProcessorFunc is a function implementing [Processor].
type ProcessorFunc func(ctx context.Context, in *message.Inbound) []message.Outbound

func (f ProcessorFunc) Handle(ctx context.Context, in *message.Inbound) []message.Outbound {
	return f(ctx, in)
}

// Mode selects how a [Chain] combines its processors.
type Mode int

const (
	// StopOnFirst returns the output of the first processor that produces
	// any.
	StopOnFirst Mode = iota
	// CollectAll runs every processor and concatenates their outputs.
	CollectAll
)

// Chain is a Processor running a sequence of processors.
type Chain struct {
	Mode       Mode
	Processors []Processor
	// Log receives processor panics. If nil, slog.Default is used.
	Log *slog.Logger
}

func (c *Chain) Handle(ctx context.Context, in *message.Inbound) []message.Outbound {
	var r []message.Outbound
	for i, p := range c.Processors {
		out := c.call(ctx, i, p, in)
		r = append(r, out...)
		if c.Mode == StopOnFirst && len(r) > 0 {
			break
		}
	}
	return r
}

// call runs one processor, treating a panic as no output.
func (c *Chain) call(ctx context.Context, i int, p Processor, in *message.Inbound) (out []message.Outbound) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log := c.Log
		if log == nil {
			log = slog.Default()
		}
		log.ErrorContext(ctx, "processor panicked",
			slog.Int("processor", i),
			slog.String("chat", in.Addr.ChatKey()),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)
		out = nil
	}()
	return p.Handle(ctx, in)
}
