// Package telemetry exposes the bridge's prometheus metrics on the default
// registry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts durably processed stream events per topic.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "events_received_total",
		Help:      "Stream events durably persisted, per topic.",
	}, []string{"topic"})

	// EventsDegraded counts events whose payload could not be decoded.
	EventsDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "events_degraded_total",
		Help:      "Stream events persisted as degraded records after a decode failure, per topic.",
	}, []string{"topic"})

	// OutboxFinalized counts outbox entries reaching a terminal state.
	OutboxFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "outbox_finalized_total",
		Help:      "Outbox entries finalized, per resource kind and terminal status.",
	}, []string{"resource", "status"})

	// RowsPulled counts entities upserted by delta pulls.
	RowsPulled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "rows_pulled_total",
		Help:      "Remote entities upserted into local snapshots, per resource kind.",
	}, []string{"resource"})

	// PipelineRuns counts orchestrator runs by mode and result.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "pipeline_runs_total",
		Help:      "Pipeline runs, per composition mode and result.",
	}, []string{"mode", "result"})

	// StageDuration measures wall-clock time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
)
