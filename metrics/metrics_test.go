package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chiloven/lukosbot/metrics"
)

func TestCounterVec(t *testing.T) {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_commands_total"}, []string{"command", "result"})
	o := metrics.NewPromCounterVec(v)
	o.Observe(1, "echo", "ok")
	o.Observe(2, "echo", "ok")
	o.Observe(1, "dice", "syntax")
	if got := testutil.ToFloat64(v.WithLabelValues("echo", "ok")); got != 3 {
		t.Errorf("wrong count: want 3, got %v", got)
	}
	if got := testutil.ToFloat64(v.WithLabelValues("dice", "syntax")); got != 1 {
		t.Errorf("wrong count: want 1, got %v", got)
	}
}

func TestCollectorsSkipsNil(t *testing.T) {
	m := metrics.Metrics{
		InboundCount: metrics.NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_inbound_total"})),
	}
	if n := len(m.Collectors()); n != 1 {
		t.Errorf("wrong number of collectors: want 1, got %d", n)
	}
	// Observing a nil metric does nothing.
	metrics.Observe(m.CommandCount, 1, "x")
	metrics.Observe(m.InboundCount, 1)
}

func TestGauge(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_backlog"})
	o := metrics.NewPromGauge(g)
	o.Observe(1)
	o.Observe(1)
	o.Observe(-1)
	if got := testutil.ToFloat64(g); got != 1 {
		t.Errorf("wrong level: want 1, got %v", got)
	}
}
