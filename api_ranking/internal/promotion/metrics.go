package promotion

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for promotion cycles.
type Metrics struct {
	// Promotions counts tier transition attempts.
	// Labels: from, to, status ("ok"|"conflict"|"error"|"claimed")
	Promotions *prometheus.CounterVec
	// CycleDuration observes RunCycle wall time. No labels.
	CycleDuration *prometheus.HistogramVec
	// Candidates is the size of the last loaded candidate set. No labels.
	Candidates *prometheus.GaugeVec
}

var promotionMetrics *Metrics

// SetMetrics configures optional Prometheus metrics for the promotion engine.
func SetMetrics(m *Metrics) {
	promotionMetrics = m
}

func incPromotion(from, to, status string) {
	if promotionMetrics == nil || promotionMetrics.Promotions == nil {
		return
	}
	promotionMetrics.Promotions.WithLabelValues(from, to, status).Inc()
}

func observeCycle(seconds float64, candidates int) {
	if promotionMetrics == nil {
		return
	}
	if promotionMetrics.CycleDuration != nil {
		promotionMetrics.CycleDuration.WithLabelValues().Observe(seconds)
	}
	if promotionMetrics.Candidates != nil {
		promotionMetrics.Candidates.WithLabelValues().Set(float64(candidates))
	}
}
