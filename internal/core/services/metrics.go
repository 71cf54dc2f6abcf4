package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine metrics, exposed on /metrics.
var (
	syncAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applicant_sync_attempts_total",
			Help: "Sync attempts per platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applicant_sync_attempt_duration_seconds",
			Help:    "Duration of one configuration sync attempt",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"platform"},
	)

	applicationsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applicant_sync_applications_emitted_total",
			Help: "Normalized applications emitted downstream",
		},
		[]string{"platform"},
	)

	cvDownloadFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applicant_sync_cv_download_failures_total",
			Help: "CV downloads that failed and were emitted without CV data",
		},
		[]string{"platform"},
	)

	authCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applicant_sync_auth_calls_total",
			Help: "Outbound authentication calls per platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "applicant_sync_token_cache_hits_total",
		Help: "Token lookups served from cache",
	})

	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "applicant_sync_token_cache_misses_total",
		Help: "Token lookups that required authentication",
	})
)
