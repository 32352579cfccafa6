// Package metrics implements Prometheus metrics for the acquisition pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobStatus tracks the current PipelineState of a source's job, one gauge
	// value per (source, state) pair (1 = current state, 0 otherwise).
	JobStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_job_status",
			Help: "Current pipeline state of a source's job (1=current, 0=otherwise)",
		},
		[]string{"source", "state"},
	)

	// ProgressDiscovered tracks Progress.Discovered per source.
	ProgressDiscovered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_progress_discovered",
			Help: "Number of references discovered for the current job",
		},
		[]string{"source"},
	)

	// ProgressDownloaded tracks Progress.Downloaded per source.
	ProgressDownloaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_progress_downloaded",
			Help: "Number of documents successfully downloaded and persisted",
		},
		[]string{"source"},
	)

	// ProgressErrors tracks Progress.Errors per source.
	ProgressErrors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_progress_errors",
			Help: "Number of per-item terminal errors for the current job",
		},
		[]string{"source"},
	)

	// ProgressPending tracks Progress.Pending per source.
	ProgressPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_progress_pending",
			Help: "Number of references enqueued but not yet resolved",
		},
		[]string{"source"},
	)

	// FetchAttemptsTotal counts every HTTP fetch attempt, including retries.
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexfetch_fetch_attempts_total",
			Help: "Total number of fetch attempts, including retries",
		},
		[]string{"source", "outcome"},
	)

	// FetchLatencySeconds measures end-to-end fetch latency.
	FetchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexfetch_fetch_latency_seconds",
			Help:    "Latency of a single fetch attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// PersistErrorsTotal counts storage write failures, by whether they were
	// retried successfully or exhausted all attempts.
	PersistErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexfetch_persist_errors_total",
			Help: "Total number of persistence write failures",
		},
		[]string{"source", "outcome"},
	)

	// SeenSetSize tracks the in-job dedup set's cardinality.
	SeenSetSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexfetch_seenset_size",
			Help: "Current number of external_ids tracked in the job's seen-set",
		},
		[]string{"source"},
	)

	// RateLimiterWaitSeconds measures time spent blocked in Acquire.
	RateLimiterWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexfetch_ratelimiter_wait_seconds",
			Help:    "Time spent waiting for a rate limit token",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"source"},
	)
)

// JobStatusValue enumerates the PipelineState values reported via JobStatus.
const (
	JobStatusIdle        = "idle"
	JobStatusDiscovering = "discovering"
	JobStatusFetching    = "fetching"
	JobStatusPaused      = "paused"
	JobStatusCancelling  = "cancelling"
	JobStatusCompleted   = "completed"
	JobStatusFailed      = "failed"
)

// allStates lists every state JobStatus tracks, used to zero out the
// previous state's gauge value when transitioning.
var allStates = []string{
	JobStatusIdle, JobStatusDiscovering, JobStatusFetching,
	JobStatusPaused, JobStatusCancelling, JobStatusCompleted, JobStatusFailed,
}

// SetJobStatus sets source's current state gauge to 1 and every other state
// to 0, so a Prometheus query for "state==1" always returns exactly one row.
func SetJobStatus(source, state string) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		JobStatus.WithLabelValues(source, s).Set(v)
	}
}
