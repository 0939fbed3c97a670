package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeTimeout     = "timeout"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the coordinator's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	executions      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	cleanupFailures prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coderunner",
			Name:      "executions_total",
			Help:      "Executions by language and outcome.",
		}, []string{"language", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coderunner",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time from acceptance to verdict.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 20},
		}, []string{"language"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderunner",
			Name:      "executions_in_flight",
			Help:      "Executions holding a workspace or sandbox.",
		}),
		cleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "coderunner",
			Name:      "sandbox_cleanup_failures_total",
			Help:      "Sandboxes that could not be removed.",
		}),
	}
}

func (m *Metrics) observe(language, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(language, outcome).Inc()
	if outcome != OutcomeInvalid && outcome != OutcomeUnavailable {
		m.duration.WithLabelValues(language).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) begin() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) cleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
