// Package metrics exposes commit counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Commit struct {
	commits       *prometheus.CounterVec
	duration      prometheus.Histogram
	compensations *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg yields collectors that are
// never exported, which keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Commit {
	m := &Commit{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saleregister_commits_total",
			Help: "Sale commits by terminal outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "saleregister_commit_duration_seconds",
			Help:    "Wall time of a sale commit including compensation.",
			Buckets: prometheus.DefBuckets,
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saleregister_compensations_total",
			Help: "Compensation steps by step and result.",
		}, []string{"step", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.commits, m.duration, m.compensations)
	}
	return m
}

func (m *Commit) ObserveCommit(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Commit) ObserveCompensation(step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(step, result).Inc()
}
