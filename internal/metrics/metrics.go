// Package metrics holds the Prometheus collectors shared by the catalog
// client, the store and the paging mediator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts catalog API requests by endpoint and outcome
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_api_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "status"}, // status: HTTP code or "transport_error"
	)

	// APIRequestDuration tracks catalog API latency by endpoint
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_api_request_duration_seconds",
			Help:    "Catalog API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// MediatorLoads counts paging mediator loads by collection, trigger and outcome
	MediatorLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_mediator_loads_total",
			Help: "Total number of paging mediator loads",
		},
		[]string{"kind", "load", "outcome"}, // outcome: "page", "end", "error"
	)

	// InitialRefreshSkips counts refreshes served from a fresh cache
	InitialRefreshSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_initial_refresh_skips_total",
			Help: "Total number of initial refreshes skipped because the cache was fresh",
		},
		[]string{"kind"},
	)

	// StoreErrors tracks local store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_store_errors_total",
			Help: "Total number of local store operation errors",
		},
		[]string{"operation"}, // "apply_page", "reset", "read", "put_details"
	)

	// EnrichmentFailures counts related-record lookups that were skipped
	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_enrichment_failures_total",
			Help: "Total number of failed related-record lookups",
		},
		[]string{"kind"},
	)
)
