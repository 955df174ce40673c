package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the inbound message pipeline.
type WebhookMetrics struct {
	receivedTotal  *prometheus.CounterVec
	entitiesTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		receivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldline",
			Subsystem: "webhooks",
			Name:      "inbound_total",
			Help:      "Total inbound provider webhooks by outcome",
		}, []string{"event_type", "outcome"}),
		entitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldline",
			Subsystem: "crm",
			Name:      "entities_created_total",
			Help:      "Entities created by the inbound resolution cascade",
		}, []string{"entity"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fieldline",
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.receivedTotal, m.entitiesTotal, m.webhookLatency)
	return m
}

func (m *WebhookMetrics) ObserveInbound(eventType, outcome string) {
	if m == nil {
		return
	}
	m.receivedTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *WebhookMetrics) ObserveEntityCreated(entity string) {
	if m == nil {
		return
	}
	m.entitiesTotal.WithLabelValues(entity).Inc()
}

func (m *WebhookMetrics) ObserveLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
