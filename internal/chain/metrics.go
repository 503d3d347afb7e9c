package chain

import "github.com/prometheus/client_golang/prometheus"

// chainMetrics exposes mempool size and tip height to Prometheus,
// mirroring the teacher's per-subsystem gauge pattern (internal/peer's
// registryMetrics, internal/storage's engineMetrics).
type chainMetrics struct {
	mempoolSize prometheus.Gauge
	blockHeight prometheus.Gauge
}

func newChainMetrics() *chainMetrics {
	mempool := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "blockchain",
		Name:      "mempool_size",
		Help:      "Number of pending transactions in the mempool.",
	})
	height := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "blockchain",
		Name:      "block_height",
		Help:      "Height of the current chain tip.",
	})
	_ = prometheus.Register(mempool)
	_ = prometheus.Register(height)
	return &chainMetrics{mempoolSize: mempool, blockHeight: height}
}

// RefreshMetrics recomputes the gauges from current state. Called from
// the mining loop's tick rather than on every pool mutation, since the
// values only need to be accurate at observation cadence.
func (b *Blockchain) RefreshMetrics() {
	b.mu.RLock()
	height := b.tip.Height
	b.mu.RUnlock()

	if b.metrics == nil {
		return
	}
	b.metrics.mempoolSize.Set(float64(b.pool.Len()))
	b.metrics.blockHeight.Set(float64(height))
}
