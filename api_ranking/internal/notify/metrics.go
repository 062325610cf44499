package notify

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for notification dispatch.
type Metrics struct {
	// Notifications counts TryNotify decisions.
	// Labels: kind, outcome
	Notifications *prometheus.CounterVec
	// PushDeliveries counts asynchronous push attempts.
	// Labels: status ("ok"|"error"|"timeout")
	PushDeliveries *prometheus.CounterVec
}

var notifyMetrics *Metrics

// SetMetrics configures optional Prometheus metrics for the notify package.
func SetMetrics(m *Metrics) {
	notifyMetrics = m
}

func incNotification(kind Kind, outcome string) {
	if notifyMetrics == nil || notifyMetrics.Notifications == nil {
		return
	}
	notifyMetrics.Notifications.WithLabelValues(string(kind), outcome).Inc()
}

func incPushDelivery(status string) {
	if notifyMetrics == nil || notifyMetrics.PushDeliveries == nil {
		return
	}
	notifyMetrics.PushDeliveries.WithLabelValues(status).Inc()
}
