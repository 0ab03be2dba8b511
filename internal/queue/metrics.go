package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elscan_jobs_enqueued_total",
		Help: "Total number of blueprint jobs enqueued",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elscan_jobs_total",
		Help: "Total number of finished blueprint jobs by status",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elscan_job_duration_seconds",
		Help:    "Duration of successful blueprint jobs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})
)
