package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictx_api_requests_total",
			Help: "Total number of PredictX API requests by method and outcome.",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predictx_api_request_duration_seconds",
			Help:    "PredictX API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func observe(method, status string, start time.Time) {
	requestsTotal.WithLabelValues(method, status).Inc()
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
