package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.InvoiceGenerated("GENERATED")
	m.InvoiceGenerated("GENERATED")
	m.InvoiceTransition("draft", "issued")
	m.Failure("invoice.generate", "NO_PENDING_EVENTS")
	m.EventStored()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvoicesGenerated.WithLabelValues("GENERATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceTransitions.WithLabelValues("draft", "issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationFailures.WithLabelValues("invoice.generate", "NO_PENDING_EVENTS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingEventsStored))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InvoiceGenerated("GENERATED")
		m.SettlementAction("close")
		m.MovementPosted("INBOUND", "post")
		m.Failure("x", "y")
		m.EventStored()
	})
}
