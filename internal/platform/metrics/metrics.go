package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check engine. All helpers are
// nil-safe so the engine can run without a metrics backend in tests.
type Metrics struct {
	// Per-check execution latency
	CheckDuration *prometheus.HistogramVec

	// Check outcomes by terminal state
	CheckOutcome *prometheus.CounterVec

	// Cumulative epsilon billed in the current run
	EpsilonSpent prometheus.Gauge
}

// New creates and registers all engine metrics. Pass a fresh registry in
// tests; nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dpqc_check_duration_seconds",
			Help:    "Duration of individual quality check executions",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"check"}),

		CheckOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dpqc_check_outcomes_total",
			Help: "Total check outcomes by terminal state",
		}, []string{"status"}), // status: "completed", "failed", "rejected", "cancelled"

		EpsilonSpent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dpqc_epsilon_spent_total",
			Help: "Cumulative epsilon billed against the run budget",
		}),
	}
}

// ObserveCheckDuration records one check's execution time.
func (m *Metrics) ObserveCheckDuration(check string, d time.Duration) {
	if m != nil {
		m.CheckDuration.WithLabelValues(check).Observe(d.Seconds())
	}
}

// IncrementOutcome records a check reaching a terminal state.
func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.CheckOutcome.WithLabelValues(status).Inc()
	}
}

// SetEpsilonSpent mirrors the ledger's cumulative spend.
func (m *Metrics) SetEpsilonSpent(eps float64) {
	if m != nil {
		m.EpsilonSpent.Set(eps)
	}
}
