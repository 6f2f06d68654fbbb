package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropcode_uploads_total",
			Help: "Number of records created, by content type.",
		},
		[]string{"type"},
	)

	codeCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_code_collisions_total",
		Help: "Number of generated codes that were already held by a live record.",
	})

	purgesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_purges_total",
		Help: "Number of completed bulk purges.",
	})

	blobDeleteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_blob_delete_errors_total",
		Help: "Number of blobs that could not be removed during purge or sweep.",
	})

	expiredRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_expired_records_total",
		Help: "Number of records removed by the expiry sweep.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_cache_hits_total",
		Help: "Number of record lookups served from the cache.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dropcode_cache_misses_total",
		Help: "Number of record lookups that went to the repository.",
	})
)
