// Package metrics defines the bot's metric set behind a small interface so
// that components need not depend on a particular metrics backend.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Observer records values for a metric, optionally by label values.
type Observer interface {
	Observe(val float64, labels ...string)

	// Observers are registered directly with a Prometheus registry.
	prometheus.Collector
}

// Metrics is the bot's metric set. Any field may be nil, in which case
// nothing is recorded for it.
type Metrics struct {
	// InboundCount counts messages received, by platform.
	InboundCount Observer
	// DroppedCount counts messages dropped by rate limits, by platform.
	DroppedCount Observer
	// CommandCount counts executed commands, by command and result.
	CommandCount Observer
	// SyntaxErrors counts command lines that failed to parse, by command.
	SyntaxErrors Observer
	// HandlerFailures counts commands that failed or panicked, by command.
	HandlerFailures Observer
	// CommandLatency is the time to execute commands in seconds, by command.
	CommandLatency Observer
	// UsageRenderLatency is the time to render usage images in seconds.
	UsageRenderLatency Observer
	// OutboundCount counts messages sent, by platform and result.
	OutboundCount Observer
	// Backlog is the number of messages waiting in dispatch lanes.
	Backlog Observer
}

// Collectors returns the non-nil metrics for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	all := []Observer{
		m.InboundCount,
		m.DroppedCount,
		m.CommandCount,
		m.SyntaxErrors,
		m.HandlerFailures,
		m.CommandLatency,
		m.UsageRenderLatency,
		m.OutboundCount,
		m.Backlog,
	}
	r := make([]prometheus.Collector, 0, len(all))
	for _, o := range all {
		if o != nil {
			r = append(r, o)
		}
	}
	return r
}

// Observe records to o if it is non-nil.
func Observe(o Observer, val float64, labels ...string) {
	if o != nil {
		o.Observe(val, labels...)
	}
}
