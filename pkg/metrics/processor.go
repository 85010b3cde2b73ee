package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Processor call outcomes, alongside OutcomeSuccess.
const (
	OutcomeProcessor = "processor_error"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// ProcessorMetrics tracks RPC dispatches and raw Mangopay HTTP calls.
type ProcessorMetrics struct {
	rpcs     *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

func NewProcessorMetrics(reg prometheus.Registerer) *ProcessorMetrics {
	if reg == nil {
		return &ProcessorMetrics{}
	}
	m := &ProcessorMetrics{
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Gateway RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Gateway RPC latency by method.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_http_requests_total",
			Help:      "HTTP requests sent to the payment processor by route and status class.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.rpcs, m.latency, m.requests)
	return m
}

// ObserveRPC records one gateway method invocation.
func (m *ProcessorMetrics) ObserveRPC(method, outcome string, d time.Duration) {
	if m == nil || m.rpcs == nil {
		return
	}
	m.rpcs.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(normalizeLabel(method)).Observe(d.Seconds())
}

// ObserveRequest records one HTTP exchange with the processor. Status is the
// class ("2xx", "4xx") or "transport" when no response arrived.
func (m *ProcessorMetrics) ObserveRequest(route, status string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(route), normalizeLabel(status)).Inc()
}
