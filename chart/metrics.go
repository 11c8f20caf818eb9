package chart

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codemetrics/codegraph/series"
)

// Metrics counts generator activity. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	charts     *prometheus.CounterVec
	rows       prometheus.Counter
	duplicates prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics registers the generator metrics in a registry of their own so
// that several generators in one process do not collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		charts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_charts_total",
			Help: "Charts generated, by result.",
		}, []string{"result"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_rows_total",
			Help: "Metric rows read from the database.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_duplicate_rows_total",
			Help: "Metric rows dropped because they repeat the previous timestamp.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codegraph_chart_duration_seconds",
			Help:    "Time to query, ingest and render one chart.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	m.registry.MustRegister(m.charts, m.rows, m.duplicates, m.duration)
	return m
}

func (m *Metrics) observe(stats series.Stats, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.charts.WithLabelValues(result).Inc()
	m.rows.Add(float64(stats.Rows))
	m.duplicates.Add(float64(stats.Duplicates))
	m.duration.Observe(seconds)
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
