package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoanMetrics tracks lending outcomes. A nil *LoanMetrics is a valid no-op.
type LoanMetrics struct {
	created   prometheus.Counter
	returned  prometheus.Counter
	rejected  *prometheus.CounterVec
	conflicts prometheus.Counter
	overdue   prometheus.Gauge
	active    prometheus.Gauge
}

// NewLoanMetrics registers the lending metrics on the provided registerer.
func NewLoanMetrics(reg prometheus.Registerer) *LoanMetrics {
	if reg == nil {
		return &LoanMetrics{}
	}
	m := &LoanMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_loans_created_total",
			Help: "Loans committed.",
		}),
		returned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_loans_returned_total",
			Help: "Loans returned.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_loans_rejected_total",
			Help: "Loan operations rejected by a lending rule.",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_loans_store_conflicts_total",
			Help: "Store conflicts detected while committing a loan.",
		}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_loans_overdue",
			Help: "Active loans past their due date at the last snapshot.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_loans_active",
			Help: "Active loans at the last snapshot.",
		}),
	}
	reg.MustRegister(m.created, m.returned, m.rejected, m.conflicts, m.overdue, m.active)
	return m
}

func (m *LoanMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *LoanMetrics) IncReturned() {
	if m == nil || m.returned == nil {
		return
	}
	m.returned.Inc()
}

// IncRejected counts a rejection labelled with the rule that failed.
func (m *LoanMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LoanMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// SetSnapshot publishes the active and overdue loan gauges.
func (m *LoanMetrics) SetSnapshot(active, overdue int) {
	if m == nil || m.overdue == nil || m.active == nil {
		return
	}
	m.active.Set(float64(active))
	m.overdue.Set(float64(overdue))
}
