// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_rows_ingested_total",
			Help: "Total number of raw rows ingested",
		},
		[]string{"client"},
	)

	RowsQuarantined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_rows_quarantined_total",
			Help: "Total number of rows quarantined by contract validation",
		},
		[]string{"client"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"client", "severity"},
	)

	PredictionGaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_prediction_gaps_total",
			Help: "Total number of prediction gaps recorded",
		},
		[]string{"client"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_runs_completed_total",
			Help: "Total number of runs by final state",
		},
		[]string{"client", "state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adpulse_stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)
