package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job lifecycle metrics, adapted from the teacher's queue metrics to
// the job/phase vocabulary of the extraction pipeline (spec §3, §4.6).
var (
	JobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
		[]string{"client_id"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_jobs_completed_total",
			Help: "Total number of jobs that reached status=completed",
		},
		[]string{"invoice_type"},
	)

	JobsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_jobs_failed_total",
			Help: "Total number of jobs that reached status=failed, by originating stage",
		},
		[]string{"stage", "kind"},
	)

	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_job_duration_seconds",
			Help:    "Wall-clock time from queued to completed/failed",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"status"},
	)

	PhaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_phase_transitions_total",
			Help: "Total number of successful SetPhase transitions",
		},
		[]string{"phase"},
	)

	TaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_task_retries_total",
			Help: "Total number of task retries by task name",
		},
		[]string{"task"},
	)

	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_store_conflicts_total",
			Help: "Total number of CONFLICT responses observed from the job store",
		},
		[]string{"operation"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invoice_queue_depth",
			Help: "Number of queued jobs returned by the most recent poll (capped at the poll limit)",
		},
	)

	WorkerPoolActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invoice_worker_pool_active",
			Help: "Number of orchestrator worker slots currently in use",
		},
	)
)

func RecordJobSubmitted(clientID string) {
	if clientID == "" {
		clientID = "unknown"
	}
	JobsSubmittedTotal.WithLabelValues(clientID).Inc()
}

func RecordJobCompleted(invoiceType string, durationSeconds float64) {
	JobsCompletedTotal.WithLabelValues(invoiceType).Inc()
	JobDurationSeconds.WithLabelValues("completed").Observe(durationSeconds)
}

func RecordJobFailed(stage, kind string, durationSeconds float64) {
	JobsFailedTotal.WithLabelValues(stage, kind).Inc()
	JobDurationSeconds.WithLabelValues("failed").Observe(durationSeconds)
}

func RecordPhaseTransition(phase string) {
	PhaseTransitionsTotal.WithLabelValues(phase).Inc()
}

func RecordTaskRetry(task string) {
	TaskRetriesTotal.WithLabelValues(task).Inc()
}

func RecordConflict(operation string) {
	ConflictsTotal.WithLabelValues(operation).Inc()
}

func SetQueueDepth(n int64) {
	QueueDepth.Set(float64(n))
}

func SetWorkerPoolActive(n int) {
	WorkerPoolActive.Set(float64(n))
}
