package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elscan_classifications_total",
			Help: "Classifications by path (llm, fallback) and fallback reason",
		},
		[]string{"path", "reason"},
	)

	llmRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elscan_llm_request_duration_seconds",
			Help:    "Duration of classification service requests",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
