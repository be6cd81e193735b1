// Package metrics holds the prometheus counters of the billing engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	InvoicesGenerated   *prometheus.CounterVec
	InvoiceTransitions  *prometheus.CounterVec
	SettlementActions   *prometheus.CounterVec
	MovementsPosted     *prometheus.CounterVec
	OperationFailures   *prometheus.CounterVec
	BillingEventsStored prometheus.Counter
}

// New creates the counters and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_invoices_generated_total",
			Help: "Invoices created, by origin.",
		}, []string{"origin"}),
		InvoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_invoice_transitions_total",
			Help: "Invoice lifecycle transitions.",
		}, []string{"from", "to"}),
		SettlementActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_settlement_actions_total",
			Help: "Settlement batch workflow actions.",
		}, []string{"action"}),
		MovementsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_movements_posted_total",
			Help: "Stock ledger movements posted or reversed, by type.",
		}, []string{"txn_type", "op"}),
		OperationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_operation_failures_total",
			Help: "Failed operations by operation and stable error code.",
		}, []string{"operation", "code"}),
		BillingEventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_events_stored_total",
			Help: "Billing events created or refreshed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.InvoicesGenerated,
			m.InvoiceTransitions,
			m.SettlementActions,
			m.MovementsPosted,
			m.OperationFailures,
			m.BillingEventsStored,
		)
	}
	return m
}

func (m *Metrics) InvoiceGenerated(origin string) {
	if m == nil {
		return
	}
	m.InvoicesGenerated.WithLabelValues(origin).Inc()
}

func (m *Metrics) InvoiceTransition(from, to string) {
	if m == nil {
		return
	}
	m.InvoiceTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SettlementAction(action string) {
	if m == nil {
		return
	}
	m.SettlementActions.WithLabelValues(action).Inc()
}

func (m *Metrics) MovementPosted(txnType, op string) {
	if m == nil {
		return
	}
	m.MovementsPosted.WithLabelValues(txnType, op).Inc()
}

func (m *Metrics) Failure(operation, code string) {
	if m == nil {
		return
	}
	m.OperationFailures.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) EventStored() {
	if m == nil {
		return
	}
	m.BillingEventsStored.Inc()
}
