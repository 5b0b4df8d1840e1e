package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rail_notice"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// monitoring cycle.
type Metrics struct {
	ObservationsReceived prometheus.Counter
	ObservationsRejected prometheus.Counter
	ObserveErrors        prometheus.Counter
	Versions             *prometheus.CounterVec // labels: outcome={created,appended,unchanged}
	ExtractionFailures   prometheus.Counter     // versions stored with null extracted_data

	StoreWrites   *prometheus.CounterVec // labels: result={success,error}
	PublishErrors *prometheus.CounterVec // labels: sink

	CycleDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge
	Announcements prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_received_total",
			Help:      "Observations read from the source.",
		}),
		ObservationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_rejected_total",
			Help:      "Observations that could not be decoded.",
		}),
		ObserveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observe_errors_total",
			Help:      "Decoded observations the history manager refused.",
		}),
		Versions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_total",
			Help:      "Observations by history outcome.",
		}, []string{"outcome"}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Versions stored without extracted data.",
		}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Document store writes by result.",
		}, []string{"result"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed change publications by sink.",
		}, []string{"sink"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete monitoring cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that saved successfully.",
		}),
		Announcements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "announcements",
			Help:      "Announcements tracked in the store.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ObservationsReceived,
		m.ObservationsRejected,
		m.ObserveErrors,
		m.Versions,
		m.ExtractionFailures,
		m.StoreWrites,
		m.PublishErrors,
		m.CycleDuration,
		m.LastSuccess,
		m.Announcements,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register adds the metrics to a registry other than the default one.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
