package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var candidatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "elscan_detector_candidates_total",
		Help: "Candidate regions produced per detection strategy before deduplication",
	},
	[]string{"method"},
)
