package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the HTTP surface.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyhades_http_requests_total",
			Help: "Total number of proxied requests by response status and cache source",
		},
		[]string{"status", "source"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxyhades_http_request_duration_seconds",
			Help:    "End-to-end proxied request duration by cache source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)
