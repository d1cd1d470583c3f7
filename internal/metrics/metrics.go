// Package metrics provides Prometheus metrics for the analysis pipeline and
// its HTTP surface. Labels are bounded: no session or asset ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeStale    = "stale"
	OutcomeRejected = "rejected"
	OutcomeCanceled = "canceled"
)

var (
	// StageTotal counts pipeline stage completions by stage and outcome.
	StageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediscan_stage_total",
		Help: "Total number of pipeline stage completions, by stage and outcome.",
	}, []string{"stage", "outcome"})

	// StageDuration observes wall time spent in each network-bound stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediscan_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	// ActiveSessions tracks sessions held by the HTTP surface.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediscan_active_sessions",
		Help: "Current number of pipeline sessions held in memory.",
	})

	// HTTPRequestsTotal counts HTTP requests by method and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediscan_http_requests_total",
		Help: "Total number of HTTP requests, by method and status class.",
	}, []string{"method", "code"})

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediscan_http_requests_in_flight",
		Help: "Current number of HTTP requests being served.",
	})
)

// RecordStage increments the stage counter.
func RecordStage(stage, outcome string) {
	StageTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, since time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(since).Seconds())
}
