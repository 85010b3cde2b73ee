package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook ingestion outcomes.
const (
	WebhookAccepted  = "accepted"
	WebhookDuplicate = "duplicate"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// WebhookMetrics counts Mangopay notifications by outcome.
type WebhookMetrics struct {
	received *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Processor notifications by platform environment and outcome.",
	}, []string{"env", "outcome"})
	reg.MustRegister(received)
	return &WebhookMetrics{received: received}
}

func (w *WebhookMetrics) Observe(env, outcome string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(env), normalizeLabel(outcome)).Inc()
}
