package peer

import "github.com/prometheus/client_golang/prometheus"

// registryMetrics exposes Registry size to Prometheus, as the teacher's
// node/AI subsystems wire prometheus.client_golang for their own gauges.
type registryMetrics struct {
	peerCount prometheus.Gauge
}

func newRegistryMetrics() *registryMetrics {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "peer_registry",
		Name:      "peers",
		Help:      "Number of peers currently known to the registry.",
	})
	// Registering against the default registry is best-effort: a second
	// Registry in the same process (tests) would otherwise panic on
	// duplicate registration.
	_ = prometheus.Register(g)
	return &registryMetrics{peerCount: g}
}

func (m *registryMetrics) setPeerCount(n int) {
	if m == nil || m.peerCount == nil {
		return
	}
	m.peerCount.Set(float64(n))
}
