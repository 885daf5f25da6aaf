// Package metrics exposes the master's Prometheus vectors. Nothing here
// mutates scheduler state; internal/master calls the Record*/Set* helpers
// at the points it already transitions state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgpu_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
		[]string{"request_kind"},
	)

	JobsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgpu_jobs_finalized_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mgpu_job_duration_seconds",
			Help:    "Wall-clock time from dispatch to finalization",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to 16384s (~4.5 hours)
		},
		[]string{"status"},
	)

	JobRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mgpu_job_dispatch_retries_total",
			Help: "Total number of job dispatch retry attempts",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_queue_depth",
			Help: "Current number of queued jobs",
		},
	)

	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_running_jobs",
			Help: "Current number of running jobs",
		},
	)

	NodesHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_nodes_healthy",
			Help: "Current number of nodes considered healthy for placement",
		},
	)

	NodesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_nodes_registered",
			Help: "Current number of registered nodes, healthy or not",
		},
	)

	GPUsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_gpus_available",
			Help: "Current number of unassigned GPUs across all registered nodes",
		},
	)

	GPUsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mgpu_gpus_total",
			Help: "Total number of GPUs across all registered nodes",
		},
	)

	NodeEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgpu_node_evictions_total",
			Help: "Total number of nodes dropped for exceeding the dead-node threshold",
		},
		[]string{"node_id"},
	)

	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mgpu_archive_writes_total",
			Help: "Total number of best-effort output archive writes",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordJobSubmission(requestKind string) {
	JobsSubmitted.WithLabelValues(requestKind).Inc()
}

func RecordJobFinalized(status string, duration float64) {
	JobsFinalized.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(status).Observe(duration)
}

func RecordDispatchRetry() {
	JobRetries.Inc()
}

func RecordNodeEviction(nodeID string) {
	NodeEvictions.WithLabelValues(nodeID).Inc()
}

func RecordArchiveWrite(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	ArchiveWrites.WithLabelValues(result).Inc()
}

// SetClusterGauges updates the point-in-time gauges from a consistent
// snapshot. Callers take the master lock to build the snapshot, then call
// this outside the lock.
func SetClusterGauges(queueDepth, running, nodesHealthy, nodesRegistered, gpusAvailable, gpusTotal int) {
	QueueDepth.Set(float64(queueDepth))
	RunningJobs.Set(float64(running))
	NodesHealthy.Set(float64(nodesHealthy))
	NodesRegistered.Set(float64(nodesRegistered))
	GPUsAvailable.Set(float64(gpusAvailable))
	GPUsTotal.Set(float64(gpusTotal))
}
