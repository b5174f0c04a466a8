package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumo_cache_hits_total",
			Help: "Total number of search result cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sumo_cache_misses_total",
			Help: "Total number of search result cache misses",
		},
	)

	// CacheEntries tracks the number of in-memory entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sumo_cache_entries",
			Help: "Current number of search results held in memory",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumo_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
