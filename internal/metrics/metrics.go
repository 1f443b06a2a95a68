package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storm_research_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_research_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storm_research_run_duration_seconds",
			Help:    "End-to-end research run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storm_stage_duration_seconds",
			Help:    "Per-stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_stage_fallbacks_total",
			Help: "Times a stage degraded to its deterministic fallback",
		},
		[]string{"stage"},
	)

	// Interview metrics
	InterviewsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_interviews_completed_total",
			Help: "Interviews finished, by outcome",
		},
		[]string{"outcome"},
	)

	InterviewTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storm_interview_turns",
			Help:    "Dialogue turns per interview",
			Buckets: []float64{2, 5, 10, 15, 19},
		},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_search_requests_total",
			Help: "Search provider calls, by outcome",
		},
		[]string{"outcome"},
	)

	// Human-in-the-loop metrics
	InteractionsRequested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_interactions_requested_total",
			Help: "Human interaction checkpoints requested, by type",
		},
		[]string{"type"},
	)

	InteractionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_interactions_resolved_total",
			Help: "Human interactions resolved, by action and whether auto-approved",
		},
		[]string{"action", "auto"},
	)

	// Streaming metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storm_events_published_total",
			Help: "Progress events published to the stream manager",
		},
		[]string{"type"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storm_sessions_created_total",
			Help: "Conversation sessions created",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storm_session_cache_size",
			Help: "Sessions held in the local cache",
		},
	)
)
