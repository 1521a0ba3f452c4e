package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "backoffice"

// JobMetrics records outcomes of scheduled worker jobs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
}

// NewJobMetrics registers the worker job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of worker jobs in seconds.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Worker job executions by result.",
	}, []string{"job", "result"})
	lastRun := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run of each job.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, lastRun)
	return &JobMetrics{
		duration: duration,
		runs:     runs,
		lastRun:  lastRun,
	}
}

// ObserveDuration records the duration for the named job.
func (j *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a successful run and stamps its completion time.
func (j *JobMetrics) IncSuccess(job string) {
	if j == nil || j.runs == nil {
		return
	}
	j.runs.WithLabelValues(normalizeLabel(job), "success").Inc()
	j.lastRun.WithLabelValues(normalizeLabel(job)).SetToCurrentTime()
}

// IncFailure counts a failed run.
func (j *JobMetrics) IncFailure(job string) {
	if j == nil || j.runs == nil {
		return
	}
	j.runs.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
