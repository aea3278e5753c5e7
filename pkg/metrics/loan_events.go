package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoanEventMetrics tracks what the loan activity consumer did with each delivery.
type LoanEventMetrics struct {
	consumed    *prometheus.CounterVec
	lateReturns prometheus.Counter
}

func NewLoanEventMetrics(reg prometheus.Registerer) *LoanEventMetrics {
	if reg == nil {
		return &LoanEventMetrics{}
	}
	m := &LoanEventMetrics{
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_loan_events_consumed_total",
			Help: "Loan events received from Pub/Sub, by outcome.",
		}, []string{"event_type", "outcome"}),
		lateReturns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_loan_late_returns_total",
			Help: "Returned loans whose due date had already passed.",
		}),
	}
	reg.MustRegister(m.consumed, m.lateReturns)
	return m
}

// IncConsumed records one delivery. Outcome is handled, duplicate, skipped or failed.
func (m *LoanEventMetrics) IncConsumed(eventType, outcome string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *LoanEventMetrics) IncLateReturn() {
	if m == nil || m.lateReturns == nil {
		return
	}
	m.lateReturns.Inc()
}
