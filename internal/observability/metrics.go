// Package observability holds the Prometheus metrics for the monitor.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aurora_watch"

// Metrics holds the Prometheus counters, histograms, and gauges for the monitor.
type Metrics struct {
	Decisions     *prometheus.CounterVec // labels: kind={no_data,suppressed,report_only,alert}
	FetchErrors   prometheus.Counter
	RenderErrors  prometheus.Counter
	Deliveries    *prometheus.CounterVec // labels: kind, outcome={success,failure,disabled}
	CurrentKp     prometheus.Gauge
	Boundary      prometheus.Gauge
	Visible       prometheus.Gauge
	CheckDuration prometheus.Histogram
}

func newCollectors() *Metrics {
	return &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Monitoring cycles by decision kind.",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed reads of the planetary K-index.",
		}),
		RenderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Failed map renders.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification deliveries by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		CurrentKp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kp_index",
			Help:      "Most recent planetary K-index value.",
		}),
		Boundary: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boundary_latitude_degrees",
			Help:      "Southernmost latitude where aurora may be visible.",
		}),
		Visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visible",
			Help:      "1 when aurora may be visible from the observer, 0 otherwise.",
		}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of a complete monitoring cycle including notification.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors()
	prometheus.MustRegister(
		m.Decisions,
		m.FetchErrors,
		m.RenderErrors,
		m.Deliveries,
		m.CurrentKp,
		m.Boundary,
		m.Visible,
		m.CheckDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newCollectors()
}
