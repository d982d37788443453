package worker

import "github.com/prometheus/client_golang/prometheus"

// WorkerMetrics tracks the outcome of the background cache-sweep and
// subscription-renewal job run by the cron scheduler.
type WorkerMetrics struct {
	jobRunsTotal  *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	sweptTotal    prometheus.Counter
	renewalsTotal *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// NewWorkerMetrics builds the metric collectors. Call MustRegister to
// register them with the default Prometheus registry.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		jobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of cache-sweep/renewal job runs, by outcome",
		}, []string{"outcome"}),

		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of the cache-sweep/renewal job",
			Buckets: prometheus.DefBuckets,
		}),

		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_cache_entries_swept_total",
			Help: "Total number of expired fetcher cache entries evicted",
		}),

		renewalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_subscription_renewals_total",
			Help: "Total number of hub subscription renewal attempts, by outcome",
		}, []string{"outcome"}),

		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last successful job run",
		}),
	}
}

// MustRegister registers every metric with the default Prometheus registry.
func (m *WorkerMetrics) MustRegister() {
	prometheus.MustRegister(m.jobRunsTotal, m.jobDuration, m.sweptTotal, m.renewalsTotal, m.lastSuccess)
}

// RecordJobRun records one job run by outcome ("success" | "failure").
func (m *WorkerMetrics) RecordJobRun(outcome string) {
	m.jobRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordJobDuration records the wall-clock duration of one job run.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.jobDuration.Observe(seconds)
}

// RecordSwept adds count to the total number of evicted cache entries.
func (m *WorkerMetrics) RecordSwept(count int) {
	m.sweptTotal.Add(float64(count))
}

// RecordRenewal records one subscription renewal attempt by outcome
// ("renewed" | "failed").
func (m *WorkerMetrics) RecordRenewal(outcome string) {
	m.renewalsTotal.WithLabelValues(outcome).Inc()
}

// RecordLastSuccess stamps the last-success gauge with the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.lastSuccess.SetToCurrentTime()
}
