package globalvars

import "github.com/prometheus/client_golang/prometheus"

type facadeMetrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	syncBytes      prometheus.Counter
	updateBytes    prometheus.Counter
	syncErrors     prometheus.Counter
	updateErrors   prometheus.Counter
}

func newFacadeMetrics(reg prometheus.Registerer) *facadeMetrics {
	m := &facadeMetrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_segment_cache_hits_total",
			Help: "Segment handle cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_segment_cache_misses_total",
			Help: "Segment handle cache misses.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_segment_cache_evictions_total",
			Help: "Segment handles evicted by the LRU bound.",
		}),
		syncBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_sync_bytes_total",
			Help: "Payload bytes pushed to shared memory by ShmSync.",
		}),
		updateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_update_bytes_total",
			Help: "Payload bytes pulled from shared memory by ShmUpdate.",
		}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_sync_errors_total",
			Help: "Failed ShmSync calls.",
		}),
		updateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmvars_update_errors_total",
			Help: "Failed ShmUpdate calls.",
		}),
	}
	reg.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
		m.syncBytes, m.updateBytes, m.syncErrors, m.updateErrors,
	)
	return m
}
