package scoring

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for score calculation.
type Metrics struct {
	// CacheLookups counts score cache lookups.
	// Labels: result ("hit"|"miss"|"stale"|"error")
	CacheLookups *prometheus.CounterVec
}

var scoringMetrics *Metrics

// SetMetrics configures optional Prometheus metrics for the scoring package.
func SetMetrics(m *Metrics) {
	scoringMetrics = m
}

func incCacheLookup(result string) {
	if scoringMetrics == nil || scoringMetrics.CacheLookups == nil {
		return
	}
	scoringMetrics.CacheLookups.WithLabelValues(result).Inc()
}
