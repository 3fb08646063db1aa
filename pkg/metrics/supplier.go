package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SupplierMetrics records supplier call outcomes and webhook reconciliation
// results.
type SupplierMetrics struct {
	callDuration *prometheus.HistogramVec
	callOutcome  *prometheus.CounterVec
	webhookEvent *prometheus.CounterVec
}

// NewSupplierMetrics registers the supplier metrics on the provided registerer.
func NewSupplierMetrics(reg prometheus.Registerer) *SupplierMetrics {
	if reg == nil {
		return &SupplierMetrics{}
	}
	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomadair",
		Name:      "supplier_call_duration_seconds",
		Help:      "Duration of supplier API calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	callOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomadair",
		Name:      "supplier_call_total",
		Help:      "Supplier API calls by outcome.",
	}, []string{"provider", "operation", "outcome"})
	webhookEvent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomadair",
		Name:      "supplier_webhook_events_total",
		Help:      "Supplier webhook events by type and reconciliation result.",
	}, []string{"provider", "event_type", "result"})
	reg.MustRegister(callDuration, callOutcome, webhookEvent)
	return &SupplierMetrics{
		callDuration: callDuration,
		callOutcome:  callOutcome,
		webhookEvent: webhookEvent,
	}
}

// ObserveCall records one supplier call with its duration and outcome.
func (m *SupplierMetrics) ObserveCall(provider, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.callDuration != nil {
		m.callDuration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
	}
	if m.callOutcome != nil {
		m.callOutcome.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	}
}

// IncWebhookEvent counts one reconciled webhook delivery.
func (m *SupplierMetrics) IncWebhookEvent(provider, eventType, result string) {
	if m == nil || m.webhookEvent == nil {
		return
	}
	m.webhookEvent.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
