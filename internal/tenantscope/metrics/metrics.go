package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tenant isolation scopes.
type Metrics struct {
	// Scope outcomes by result
	ScopeOutcome *prometheus.CounterVec

	// Isolation violations are the one number that must stay at zero
	IsolationViolations prometheus.Counter

	// Full scope duration including commit
	ScopeDuration prometheus.Histogram
}

// New creates a new Metrics instance with all tenant scope metrics registered.
func New() *Metrics {
	return &Metrics{
		ScopeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_tenantscope_outcomes_total",
			Help: "Total tenant scope executions by outcome",
		}, []string{"outcome"}), // outcome: "committed", "rolled_back", "refused"

		IsolationViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_tenantscope_isolation_violations_total",
			Help: "Total tenant isolation violations detected in-process",
		}),

		ScopeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritrail_tenantscope_duration_seconds",
			Help:    "Duration of tenant scopes from begin to commit or rollback",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveOutcome records a finished scope.
func (m *Metrics) ObserveOutcome(outcome string, d time.Duration) {
	if m != nil {
		m.ScopeOutcome.WithLabelValues(outcome).Inc()
		m.ScopeDuration.Observe(d.Seconds())
	}
}

// IncrementIsolationViolations counts one detected violation.
func (m *Metrics) IncrementIsolationViolations() {
	if m != nil {
		m.IsolationViolations.Inc()
	}
}
