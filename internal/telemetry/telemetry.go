package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// worker-service
	PollCycles        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grok_worker_poll_cycles_total", Help: "Poll cycles by result"}, []string{"result"})
	JobsDispatched    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grok_worker_jobs_dispatched_total", Help: "Jobs handed to the page adapter"}, []string{"mode"})
	JobsFinalized     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grok_worker_jobs_finalized_total", Help: "Jobs finished by mode and outcome"}, []string{"mode", "outcome"})
	JobsInFlight      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "grok_worker_jobs_inflight", Help: "1 while a job is processing"})
	JobDuration       = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "grok_worker_job_duration_seconds", Help: "Time from dispatch to finalize", Buckets: []float64{5, 15, 30, 60, 120, 300, 600}}, []string{"mode"})
	SuppressedResults = prometheus.NewCounter(prometheus.CounterOpts{Name: "grok_worker_suppressed_results_total", Help: "Adapter results ignored after cancellation or for stale jobs"})

	// api-service
	JobsCreated  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grok_api_jobs_created_total", Help: "Jobs queued by type"}, []string{"type"})
	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grok_api_jobs_finished_total", Help: "Jobs finished by type and status"}, []string{"type", "status"})
	StaleReaped  = prometheus.NewCounter(prometheus.CounterOpts{Name: "grok_api_stale_jobs_reaped_total", Help: "Processing jobs failed by the stale sweep"})
)

// Poll cycle results
const (
	PollIdle    = "idle"
	PollBusy    = "busy"
	PollHit     = "hit"
	PollError   = "error"
	PollSkipped = "skipped"
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PollCycles,
			JobsDispatched,
			JobsFinalized,
			JobsInFlight,
			JobDuration,
			SuppressedResults,
			JobsCreated,
			JobsFinished,
			StaleReaped,
		)
	})
	return promhttp.Handler()
}
