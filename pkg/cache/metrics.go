package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache layers used as metric label values.
const (
	LayerMemory = "memory"
	LayerDisk   = "disk"
)

var (
	// CacheHits tracks cache hits by layer (memory, disk)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyhades_cache_hits_total",
			Help: "Total number of cache hits by layer",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks lookups that missed every layer
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxyhades_cache_misses_total",
			Help: "Total number of lookups that missed both cache layers",
		},
	)

	// CacheEntries tracks the number of entries held by a layer
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proxyhades_cache_entries",
			Help: "Current number of entries in the cache layer",
		},
		[]string{"layer"}, // "memory"
	)

	// CacheEvictions tracks entries removed to enforce the size bound
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyhades_cache_evictions_total",
			Help: "Total number of entries evicted to enforce the size bound",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks swallowed cache I/O errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyhades_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "read", "write", "delete"
	)

	// WriteQueueDropped tracks disk writes dropped because the queue was full or closed
	WriteQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxyhades_write_queue_dropped_total",
			Help: "Total number of disk writes dropped by the write queue",
		},
	)
)
