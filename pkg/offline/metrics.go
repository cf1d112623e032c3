package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// responsesTotal counts fetch-event outcomes by request category and the
	// source that produced the response.
	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_responses_total",
			Help: "Responses produced by the offline cache manager",
		},
		[]string{"category", "source"},
	)

	lifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_lifecycle_transitions_total",
			Help: "Lifecycle state transitions by target state",
		},
		[]string{"state"},
	)

	precacheFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_precache_failures_total",
			Help: "Install-time fetches that did not cache, by purpose",
		},
		[]string{"purpose"},
	)

	sweepEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_sweep_evictions_total",
			Help: "Entries removed by the sweep, by reason",
		},
		[]string{"reason"},
	)

	namespacesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_namespaces_deleted_total",
			Help: "Stale namespaces deleted during activation",
		},
	)

	syncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_sync_total",
			Help: "Background sync signals by tag and result",
		},
		[]string{"tag", "result"},
	)

	// activeVersion is 1 for the version currently controlling clients.
	activeVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offline_active_version",
			Help: "Set to 1 for the active offline cache version",
		},
		[]string{"version"},
	)
)

// Response sources.
const (
	sourceNetwork     = "network"
	sourceCache       = "cache"
	sourceShell       = "shell"
	sourcePassthrough = "passthrough"
	sourceUnavailable = "unavailable"
)
