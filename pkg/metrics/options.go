package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager. Zero values leave the default in place.
type Option func(*Manager)

// WithNamespace sets the metric namespace ("rivalry").
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the metric subsystem ("forecast").
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithNamePrefix prefixes every metric name after the subsystem.
func WithNamePrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.metricPrefix = prefix
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets of every latency histogram.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithExponentialLatencyBuckets is WithLatencyBuckets over
// prometheus.ExponentialBuckets(startMs, factor, count).
func WithExponentialLatencyBuckets(startMs, factor float64, count int) Option {
	return func(m *Manager) {
		if startMs > 0 && factor > 1 && count > 0 {
			m.histogramBuckets = prometheus.ExponentialBuckets(startMs, factor, count)
		}
	}
}

// Disabled builds the collectors without registering them, so nothing is
// exported and forecast outcomes are not counted.
func Disabled() Option {
	return func(m *Manager) { m.enabled = false }
}

// WithRefreshInterval sets how often the process refreshes system gauges.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval = interval
		}
	}
}

// WithConstLabels attaches fixed labels, e.g. the deployment, to every metric.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		for k, v := range labels {
			m.customLabels[k] = v
		}
	}
}

// WithRegistry registers the metrics on r instead of the default registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}
