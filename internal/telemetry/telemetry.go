// Package telemetry is the plugin runtime's metrics surface, ported from
// original_source's src/metrics.rs (Prometheus counters/histograms for
// load/unload/error/call events) using
// github.com/prometheus/client_golang/prometheus — a direct dependency of
// the teacher's own plugins/sql/base package — instead of hand-rolling
// counters, the way go-lynx-lynx's PrometheusMetrics wraps its own
// prometheus.Registry per component.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config mirrors original_source's MetricsConfig: a naming prefix and a
// detailed-timing toggle for the two duration histograms.
type Config struct {
	Prefix         string
	DetailedTiming bool
}

// DefaultConfig enables detailed timing and uses the runtime's own name,
// "pluginrt", as the metric prefix.
func DefaultConfig() Config {
	return Config{Prefix: "pluginrt", DetailedTiming: true}
}

// Metrics is a per-runtime Prometheus metrics collector: load/unload/error
// counters and load/call duration histograms, registered on their own
// prometheus.Registry so a host can mount it under any path it likes.
type Metrics struct {
	cfg Config

	registry *prometheus.Registry

	pluginsLoaded   prometheus.Counter
	pluginsUnloaded prometheus.Counter
	pluginErrors    prometheus.Counter
	loadDuration    prometheus.Histogram
	callDuration    prometheus.Histogram
}

// New constructs a Metrics collector and registers its series on a fresh
// prometheus.Registry.
func New(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		cfg:      cfg,
		registry: reg,
		pluginsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: cfg.Prefix + "_loaded_total",
			Help: "Total number of plugins loaded",
		}),
		pluginsUnloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: cfg.Prefix + "_unloaded_total",
			Help: "Total number of plugins unloaded",
		}),
		pluginErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: cfg.Prefix + "_errors_total",
			Help: "Total number of plugin errors",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_load_duration_seconds",
			Help:    "Plugin load duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_call_duration_seconds",
			Help:    "Plugin call duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}

	reg.MustRegister(
		m.pluginsLoaded,
		m.pluginsUnloaded,
		m.pluginErrors,
		m.loadDuration,
		m.callDuration,
	)
	return m
}

// Registry exposes the underlying prometheus.Registry so a host can serve
// it via promhttp or scrape it directly.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordLoad records a successful plugin load and its duration.
func (m *Metrics) RecordLoad(d time.Duration) {
	m.pluginsLoaded.Inc()
	if m.cfg.DetailedTiming {
		m.loadDuration.Observe(d.Seconds())
	}
}

// RecordUnload records a plugin unload.
func (m *Metrics) RecordUnload() { m.pluginsUnloaded.Inc() }

// RecordError records a plugin lifecycle error (emitted alongside
// plugin.EventError).
func (m *Metrics) RecordError() { m.pluginErrors.Inc() }

// RecordCall records one Call dispatch's duration, regardless of outcome.
func (m *Metrics) RecordCall(d time.Duration) {
	if m.cfg.DetailedTiming {
		m.callDuration.Observe(d.Seconds())
	}
}
