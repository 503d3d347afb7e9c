package storage

import "github.com/prometheus/client_golang/prometheus"

// engineMetrics exposes cache hit ratio and replication backlog to
// Prometheus, mirroring internal/peer's registryMetrics pattern.
type engineMetrics struct {
	cacheHitRatio        prometheus.Gauge
	contentsStored       prometheus.Gauge
	reReplicationPending prometheus.Gauge
}

func newEngineMetrics() *engineMetrics {
	hitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "storage_engine",
		Name:      "cache_hit_ratio",
		Help:      "Fraction of content retrievals served from cache.",
	})
	stored := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "storage_engine",
		Name:      "contents_stored",
		Help:      "Number of distinct content ids currently stored.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "storage_engine",
		Name:      "re_replication_pending",
		Help:      "Number of content ids with an unhealthy replica awaiting repair.",
	})
	_ = prometheus.Register(hitRatio)
	_ = prometheus.Register(stored)
	_ = prometheus.Register(pending)
	return &engineMetrics{cacheHitRatio: hitRatio, contentsStored: stored, reReplicationPending: pending}
}

// RefreshMetrics recomputes and publishes the engine's gauges; callers
// invoke this periodically (e.g. alongside the mining loop's tick)
// rather than on every store/retrieve.
func (e *Engine) RefreshMetrics() {
	if e.metrics == nil {
		return
	}
	cs := e.CacheStats()
	total := cs.Hits + cs.Misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(cs.Hits) / float64(total)
	}
	e.metrics.cacheHitRatio.Set(ratio)

	e.mu.RLock()
	ids := make([]ContentId, 0, len(e.contents))
	for id := range e.contents {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	e.metrics.contentsStored.Set(float64(len(ids)))

	pending := 0
	for _, id := range ids {
		if len(e.replicas.Healthy(id)) < e.replicas.ReplicaCount(id) {
			pending++
		}
	}
	e.metrics.reReplicationPending.Set(float64(pending))
}
