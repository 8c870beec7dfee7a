package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SessionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_started_total",
		Help: "Total number of sessions started.",
	})
	SessionsResumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_resumed_total",
		Help: "Total number of sessions resumed from cache or durable store.",
	})
	SessionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_expired_total",
		Help: "Total number of sessions found expired during resolution.",
	})
	CacheHitTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_cache_hit_total",
		Help: "Total number of session reads served from the cache.",
	})
	CacheMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_cache_miss_total",
		Help: "Total number of session reads that fell back to the durable store.",
	})
	DurableWriteTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_durable_write_total",
		Help: "Total number of session rows written to the durable store.",
	})
	DurableWriteSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_durable_write_skipped_total",
		Help: "Total number of durable writes suppressed by the write-back throttle.",
	})
	SweepDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_sweep_deleted_total",
		Help: "Total number of expired session rows removed by the sweep.",
	})
)

// Register registers the session-store metrics with reg. It should be called
// once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		SessionsStartedTotal,
		SessionsResumedTotal,
		SessionsExpiredTotal,
		CacheHitTotal,
		CacheMissTotal,
		DurableWriteTotal,
		DurableWriteSkippedTotal,
		SweepDeletedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register session store metric")
		}
	}
}
