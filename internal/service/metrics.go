package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes.
const (
	outcomeOK          = "ok"
	outcomeEmpty       = "empty"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
)

var (
	searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests by outcome",
		},
		[]string{"outcome"},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Duration of search requests including compile and store read",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	listingsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_listings_indexed_total",
			Help: "Total number of listings written to or removed from the index",
		},
		[]string{"operation"},
	)
)
