package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks namespace lookups that found an entry, by store layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of offline cache hits",
		},
		[]string{"layer"}, // "memory", "redis", "disk"
	)

	// CacheMisses tracks namespace lookups that found nothing
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of offline cache misses",
		},
		[]string{"layer"},
	)

	// CacheWrites tracks entries stored
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_writes_total",
			Help: "Total number of entries written to the offline cache",
		},
		[]string{"layer"},
	)

	// CacheDeletes tracks entries removed individually
	CacheDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_deletes_total",
			Help: "Total number of entries deleted from the offline cache",
		},
		[]string{"layer"},
	)

	// CacheBytesWritten tracks encoded bytes written by layer
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_written_bytes_total",
			Help: "Total encoded bytes written to the offline cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of offline cache operation errors",
		},
		[]string{"layer", "operation"}, // "match", "put", "delete", "keys", "open", "drop"
	)
)
