package jobs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Runs counts job executions. Labels: job, status ("ok"|"error"|"skipped")
	Runs *prometheus.CounterVec
	// RankingRemoved counts ranking members dropped by cleanup.
	// Labels: reason ("invalid"|"foreign"|"stale")
	RankingRemoved *prometheus.CounterVec
	// ScoresInvalidated counts cache entries dropped by the sweep. No labels.
	ScoresInvalidated *prometheus.CounterVec
}

var jobMetrics *Metrics

// SetMetrics configures optional Prometheus metrics for scheduled jobs.
func SetMetrics(m *Metrics) {
	jobMetrics = m
}

func incRun(job, status string) {
	if jobMetrics == nil || jobMetrics.Runs == nil {
		return
	}
	jobMetrics.Runs.WithLabelValues(job, status).Inc()
}

func addRankingRemoved(reason string, n int) {
	if jobMetrics == nil || jobMetrics.RankingRemoved == nil || n == 0 {
		return
	}
	jobMetrics.RankingRemoved.WithLabelValues(reason).Add(float64(n))
}

func addScoresInvalidated(n int) {
	if jobMetrics == nil || jobMetrics.ScoresInvalidated == nil || n == 0 {
		return
	}
	jobMetrics.ScoresInvalidated.WithLabelValues().Add(float64(n))
}
