// Package metrics declares the prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantfit_connector_requests_total",
			Help: "Connector fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantfit_retry_attempts_total",
			Help: "Retried attempts by operation and classified error kind",
		},
		[]string{"operation", "kind"},
	)

	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grantfit_scoring_duration_seconds",
			Help:    "Duration of a single fit analysis including retries",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
		[]string{"outcome"},
	)

	ScanJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grantfit_scan_jobs_total",
			Help: "Scan jobs by terminal status",
		},
		[]string{"status"},
	)

	ScanJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grantfit_scan_jobs_active",
			Help: "Scan jobs currently running",
		},
	)
)
