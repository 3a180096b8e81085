package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job metrics
	JobsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_jobs_started_total",
			Help: "Total number of research jobs admitted to execution",
		},
		[]string{"kind"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_jobs_completed_total",
			Help: "Total number of research jobs reaching a terminal state",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchd_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Pipeline stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchd_stage_duration_ms",
			Help:    "Pipeline stage duration in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		},
		[]string{"stage"},
	)

	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_stage_retries_total",
			Help: "Total number of stage retries after transient failures",
		},
		[]string{"stage"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchd_queue_depth",
			Help: "Number of jobs waiting for admission",
		},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchd_jobs_running",
			Help: "Number of jobs currently executing",
		},
	)

	// Document metrics
	DocumentsResearching = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchd_documents_researching",
			Help: "Number of documents with research in flight",
		},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_merges_total",
			Help: "Total number of result merges applied",
		},
		[]string{"status"},
	)

	// Collaborator metrics
	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_collaborator_calls_total",
			Help: "Total number of external collaborator calls",
		},
		[]string{"collaborator", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "researchd_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Event stream metrics
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchd_event_subscribers",
			Help: "Number of active event stream subscribers",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_events_published_total",
			Help: "Total number of events published to the stream hub",
		},
		[]string{"type"},
	)
)
