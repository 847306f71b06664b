package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobsTotal counts jobs by terminal status and failure reason
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_jobs_total",
			Help: "Invoice jobs that reached a terminal state",
		},
		[]string{"status", "reason"},
	)

	// stageDuration tracks collaborator latency per stage
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// duplicatesTotal counts attachments skipped by dedup
	duplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invoice_duplicate_attachments_total",
			Help: "Attachments skipped because a job already exists for them",
		},
	)

	// checksPassed observes how many verification checks each invoice passed
	checksPassed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_verification_checks_passed",
			Help:    "Number of verification checks passed per invoice",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)
)
