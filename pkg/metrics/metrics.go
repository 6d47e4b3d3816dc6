// Package metrics provides Prometheus metrics for the subdivisions service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileRunsTotal tracks level reconciliations by status
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of level reconciliations by status",
		},
		[]string{"level", "status"},
	)

	// ReconcileDuration tracks level reconciliation duration in seconds
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subdivisions",
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Duration of level reconciliations in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"level"},
	)

	// EntityOutcomesTotal tracks upsert outcomes
	EntityOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "reconcile",
			Name:      "entity_outcomes_total",
			Help:      "Total number of entity upserts by outcome",
		},
		[]string{"level", "outcome"},
	)

	// DataPointsUpserted tracks structured data point writes
	DataPointsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "reconcile",
			Name:      "data_points_total",
			Help:      "Total number of structured data points written",
		},
		[]string{"level", "datacode"},
	)

	// RecordsExtracted tracks records emitted by the table extractor
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "extractor",
			Name:      "records_total",
			Help:      "Total number of records emitted after filtering",
		},
		[]string{"source"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subdivisions",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)

	// SchedulerRunsTotal tracks scheduled pipeline runs
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled pipeline runs by status",
		},
		[]string{"status"},
	)

	// LockContention tracks failed run lock acquisitions
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subdivisions",
			Subsystem: "lock",
			Name:      "not_acquired_total",
			Help:      "Total number of reconciliations refused because the run lock was held",
		},
		[]string{"key"},
	)
)
