package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elscan_pages_processed_total",
			Help: "Total number of pages processed",
		},
	)

	pageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elscan_page_processing_duration_seconds",
			Help:    "Per-page OCR, detection and association duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25, 60},
		},
	)

	fixturesPerPage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elscan_fixtures_per_page",
			Help:    "Number of associated fixtures found per page",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
)
