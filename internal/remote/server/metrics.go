package server

import (
	"net/http"

	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports engine outcomes to Prometheus. Each instance owns its
// registry so tests and multiple servers do not collide.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	pruned     prometheus.Counter
	critical   *prometheus.HistogramVec
	watchers   prometheus.Gauge
}

// NewMetrics registers the sitedoc collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitedoc_operations_total",
			Help: "Engine operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "sitedoc_checkpoints_pruned_total",
			Help: "Checkpoints removed by retention.",
		}),
		critical: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitedoc_critical_section_seconds",
			Help:    "Time spent holding a document's write lock.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		watchers: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitedoc_watchers",
			Help: "Open live version feed connections.",
		}),
	}
}

// Observe records one engine event.
func (m *Metrics) Observe(ev core.Event) {
	m.operations.WithLabelValues(string(ev.Op), string(ev.Type)).Inc()
	if ev.Pruned > 0 {
		m.pruned.Add(float64(ev.Pruned))
	}
	if ev.Duration > 0 {
		m.critical.WithLabelValues(string(ev.Op)).Observe(ev.Duration.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
