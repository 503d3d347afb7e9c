package transport

import (
	"github.com/prometheus/client_golang/prometheus"

	"zhtp-core/internal/peer"
)

// routerMetrics exposes live connection counts per transport protocol,
// mirroring internal/peer's registryMetrics and internal/storage's
// engineMetrics gauge-per-subsystem pattern.
type routerMetrics struct {
	connections *prometheus.GaugeVec
}

func newRouterMetrics() *routerMetrics {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zhtp",
		Subsystem: "transport_router",
		Name:      "connections",
		Help:      "Number of live connections per transport protocol.",
	}, []string{"protocol"})
	_ = prometheus.Register(g)
	return &routerMetrics{connections: g}
}

func (m *routerMetrics) setProtocolCount(p peer.ProtocolTag, n int) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.WithLabelValues(p.String()).Set(float64(n))
}
