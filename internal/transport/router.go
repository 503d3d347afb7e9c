package transport

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
	"zhtp-core/internal/zhtperrors"
)

var transportLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { transportLogger = l }

const trustDecrementOnSignatureMismatch = -0.2

// protoTable holds the live connections for one transport protocol,
// keyed by an address string: BLE peripheral UUID on Apple platforms,
// node-id elsewhere (spec §4.3 "Per-protocol connection tables").
type protoTable struct {
	mu      sync.RWMutex
	entries map[string]*MeshConnection
}

func newProtoTable() *protoTable {
	return &protoTable{entries: make(map[string]*MeshConnection)}
}

// Router maintains one authenticated connection per peer per transport,
// bridges messages across transports, and runs the mesh handshake.
// Grounded on the teacher's core/network.go Node (libp2p host + peer
// table under a dedicated mutex), generalized to the mesh's own
// handshake and multi-transport bridging.
type Router struct {
	local    *identity.Identity
	registry *peer.Registry
	nonces   *NonceCache

	tablesMu sync.RWMutex
	tables   map[peer.ProtocolTag]*protoTable

	reassembly *reassemblyStore
	metrics    *routerMetrics
}

// NewRouter builds a Router bound to a local identity and the shared
// PeerRegistry.
func NewRouter(local *identity.Identity, reg *peer.Registry) *Router {
	return &Router{
		local:      local,
		registry:   reg,
		nonces:     NewNonceCache(),
		tables:     make(map[peer.ProtocolTag]*protoTable),
		reassembly: newReassemblyStore(),
		metrics:    newRouterMetrics(),
	}
}

func (rt *Router) tableFor(p peer.ProtocolTag) *protoTable {
	rt.tablesMu.Lock()
	defer rt.tablesMu.Unlock()
	t, ok := rt.tables[p]
	if !ok {
		t = newProtoTable()
		rt.tables[p] = t
	}
	return t
}

// connectionKey mirrors the spec's per-protocol table key: the peer's
// device/peripheral identity on transports that need one, the node id
// elsewhere.
func connectionKey(protocol peer.ProtocolTag, address string, nodeID identity.Id) string {
	if protocol == peer.ProtocolBLE {
		return address
	}
	return nodeID.Hex()
}

// PublishConnection records an authenticated MeshConnection into the
// per-protocol table and reflects it as an endpoint in the PeerRegistry
// (spec §4.3 step 7).
func (rt *Router) PublishConnection(protocol peer.ProtocolTag, address string, conn MeshConnection) error {
	conn.Protocol = protocol
	conn.Address = address

	table := rt.tableFor(protocol)
	table.mu.Lock()
	table.entries[connectionKey(protocol, address, conn.Peer)] = &conn
	count := len(table.entries)
	table.mu.Unlock()
	rt.metrics.setProtocolCount(protocol, count)

	entry := peer.Entry{
		PeerID:    peer.UnifiedPeerId{NodeID: conn.Peer, DID: conn.Peer.DID()},
		Endpoints: []peer.Endpoint{{Address: address, Protocol: protocol, LatencyMS: conn.LatencyMS}},
		ConnectionMetrics: peer.ConnectionMetrics{
			BandwidthBps: conn.BandwidthCapacity,
			LatencyMS:    conn.LatencyMS,
			Stability:    1,
			ConnectedAt:  conn.ConnectedAt,
		},
		DiscoveryMethod: peer.DiscoveryHandshake,
		TrustScore:      0.5,
	}
	return rt.registry.Upsert(entry)
}

// Disconnect removes a connection table entry and notifies the
// PeerRegistry to drop only that endpoint, never the peer itself (spec
// §4.3 "Per-protocol connection tables").
func (rt *Router) Disconnect(protocol peer.ProtocolTag, address string, nodeID identity.Id) {
	table := rt.tableFor(protocol)
	table.mu.Lock()
	delete(table.entries, connectionKey(protocol, address, nodeID))
	count := len(table.entries)
	table.mu.Unlock()
	rt.metrics.setProtocolCount(protocol, count)
	transportLogger.WithFields(logrus.Fields{"protocol": protocol.String(), "address": address}).Info("transport: connection closed")
}

// connectionFor returns the live connection to a peer on a given
// protocol, if any.
func (rt *Router) connectionFor(protocol peer.ProtocolTag, address string, nodeID identity.Id) (*MeshConnection, bool) {
	table := rt.tableFor(protocol)
	table.mu.RLock()
	defer table.mu.RUnlock()
	c, ok := table.entries[connectionKey(protocol, address, nodeID)]
	return c, ok
}

// BestEndpoint picks the best reachable endpoint for a peer by
// stability_score × (1 / latency_ms), restricted to the protocols the
// peer actually supports (spec §4.3 "Bridging").
func BestEndpoint(e peer.Entry) (peer.Endpoint, bool) {
	var best peer.Endpoint
	bestScore := -1.0
	found := false
	for _, ep := range e.Endpoints {
		if len(e.Capabilities.SupportedProtocols) > 0 {
			supported := false
			for _, p := range e.Capabilities.SupportedProtocols {
				if p == ep.Protocol {
					supported = true
					break
				}
			}
			if !supported {
				continue
			}
		}
		score := stabilityScore(e.ConnectionMetrics.Stability, ep.LatencyMS)
		if score > bestScore {
			bestScore = score
			best = ep
			found = true
		}
	}
	return best, found
}

// SendToPeer forwards payload to a peer, selecting its best endpoint and
// delivering over whichever protocol table holds a live connection for
// that endpoint (spec §4.3 "Bridging": the MeshRouter's send-to-peer
// primitive).
func (rt *Router) SendToPeer(nodeID identity.Id, payload []byte, deliver func(protocol peer.ProtocolTag, address string, payload []byte) error) error {
	entry, ok := rt.registry.Get(nodeID)
	if !ok {
		return zhtperrors.New(zhtperrors.KindProtocol, "send to peer: unknown peer")
	}
	ep, ok := BestEndpoint(entry)
	if !ok {
		return zhtperrors.New(zhtperrors.KindProtocol, "send to peer: no reachable endpoint")
	}
	if _, live := rt.connectionFor(ep.Protocol, ep.Address, nodeID); !live {
		return zhtperrors.New(zhtperrors.KindProtocol, fmt.Sprintf("send to peer: no live connection on %s", ep.Protocol))
	}
	return deliver(ep.Protocol, ep.Address, payload)
}

// ReportSignatureMismatch implements the failure model: a verified
// peer's signature mismatch on any later message tears the connection
// down and decrements trust (spec §4.3 "Failure model").
func (rt *Router) ReportSignatureMismatch(protocol peer.ProtocolTag, address string, nodeID identity.Id) error {
	rt.Disconnect(protocol, address, nodeID)
	if err := rt.registry.AdjustTrust(nodeID, trustDecrementOnSignatureMismatch); err != nil {
		return err
	}
	transportLogger.WithField("peer", nodeID.Hex()).Warn("transport: signature mismatch, trust decremented")
	return nil
}
