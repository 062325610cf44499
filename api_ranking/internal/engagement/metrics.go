package engagement

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Events counts recorded engagement events.
	// Labels: type, status ("ok"|"invalid"|"not_found"|"error")
	Events *prometheus.CounterVec
}

var engagementMetrics *Metrics

// SetMetrics configures optional Prometheus metrics for the engagement path.
func SetMetrics(m *Metrics) {
	engagementMetrics = m
}

func incEvent(eventType, status string) {
	if engagementMetrics == nil || engagementMetrics.Events == nil {
		return
	}
	engagementMetrics.Events.WithLabelValues(eventType, status).Inc()
}
