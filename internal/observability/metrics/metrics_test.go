package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsObserve(t *testing.T) {
	m := NewWebhookMetrics(prometheus.NewRegistry())
	m.ObserveInbound("message.received", "processed")
	m.ObserveInbound("message.received", "duplicate")
	m.ObserveEntityCreated("customer")
	m.ObserveLatency("message.received", 0.05)
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.ObserveInbound("event", "processed")
	m.ObserveEntityCreated("conversation")
	m.ObserveLatency("event", 0.1)
}
