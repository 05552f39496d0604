package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promObserver is an Observer backed by a Prometheus collector.
type promObserver struct {
	prometheus.Collector
	observe func(val float64, labels []string)
}

func (m *promObserver) Observe(val float64, labels ...string) {
	m.observe(val, labels)
}

// NewPromCounter adapts a counter. Labels are ignored.
func NewPromCounter(m prometheus.Counter) Observer {
	return &promObserver{m, func(val float64, _ []string) { m.Add(val) }}
}

// NewPromCounterVec adapts a labeled counter.
func NewPromCounterVec(m *prometheus.CounterVec) Observer {
	return &promObserver{m, func(val float64, labels []string) { m.WithLabelValues(labels...).Add(val) }}
}

// NewPromGauge adapts a gauge. Observed values are added, so callers
// observe +1 and -1 to track a level. Labels are ignored.
func NewPromGauge(m prometheus.Gauge) Observer {
	return &promObserver{m, func(val float64, _ []string) { m.Add(val) }}
}

// NewPromGaugeVec adapts a labeled gauge the same way as [NewPromGauge].
func NewPromGaugeVec(m *prometheus.GaugeVec) Observer {
	return &promObserver{m, func(val float64, labels []string) { m.WithLabelValues(labels...).Add(val) }}
}

// NewPromObserverVec adapts a histogram or summary vec.
func NewPromObserverVec(m prometheus.ObserverVec) Observer {
	return &promObserver{m, func(val float64, labels []string) { m.WithLabelValues(labels...).Observe(val) }}
}

// NewPromHistogram adapts an unlabeled histogram.
func NewPromHistogram(m prometheus.Histogram) Observer {
	return &promObserver{m, func(val float64, _ []string) { m.Observe(val) }}
}
