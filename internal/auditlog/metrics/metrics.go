package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit log.
type Metrics struct {
	// Entries written by action type
	EntriesRecorded *prometheus.CounterVec

	// Recorder rejections before any write
	RecordRejections *prometheus.CounterVec

	// Gap detection runs and findings
	GapChecks    prometheus.Counter
	GapsDetected prometheus.Counter
}

// New creates a new Metrics instance with all audit log metrics registered.
func New() *Metrics {
	return &Metrics{
		EntriesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_audit_entries_recorded_total",
			Help: "Total audit log entries written by action type",
		}, []string{"action_type"}),

		RecordRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_audit_record_rejections_total",
			Help: "Total recorder rejections by reason",
		}, []string{"reason"}), // reason: "missing_justification", "invalid_descriptor", "no_scope"

		GapChecks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_audit_gap_checks_total",
			Help: "Total sequence gap detection runs",
		}),

		GapsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_audit_gaps_detected_total",
			Help: "Total missing sequence numbers reported by gap detection",
		}),
	}
}

// IncrementRecorded counts one written entry.
func (m *Metrics) IncrementRecorded(actionType string) {
	if m != nil {
		m.EntriesRecorded.WithLabelValues(actionType).Inc()
	}
}

// IncrementRejected counts one recorder rejection.
func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.RecordRejections.WithLabelValues(reason).Inc()
	}
}

// ObserveGapCheck counts one detection run and its findings.
func (m *Metrics) ObserveGapCheck(missing int) {
	if m != nil {
		m.GapChecks.Inc()
		m.GapsDetected.Add(float64(missing))
	}
}
