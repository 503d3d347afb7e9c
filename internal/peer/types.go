// Package peer implements the PeerRegistry component: the single source
// of truth for peer membership, with observer-based change propagation.
// Grounded on the teacher's core/peer_management.go (RWMutex-guarded peer
// table, libp2p peer.ID as node identity source).
package peer

import (
	"time"

	"zhtp-core/internal/identity"
)

// UnifiedPeerId is a stable peer identifier equal across every transport
// the peer is reachable on. Equality and hashing are over NodeID alone
// (spec §3.1).
type UnifiedPeerId struct {
	NodeID   identity.Id
	PubKey   identity.PublicKey
	DID      string
	DeviceID string
}

// Key returns the map key used by PeerRegistry: NodeID alone.
func (u UnifiedPeerId) Key() identity.Id { return u.NodeID }

// ProtocolTag names a physical transport.
type ProtocolTag uint8

const (
	ProtocolIP ProtocolTag = iota + 1
	ProtocolBLE
	ProtocolWiFiDirect
	ProtocolLoRaWAN
	ProtocolSatellite
	ProtocolDHT
)

func (p ProtocolTag) String() string {
	switch p {
	case ProtocolIP:
		return "ip"
	case ProtocolBLE:
		return "ble"
	case ProtocolWiFiDirect:
		return "wifi-direct"
	case ProtocolLoRaWAN:
		return "lorawan"
	case ProtocolSatellite:
		return "satellite"
	case ProtocolDHT:
		return "dht"
	default:
		return "unknown"
	}
}

// Endpoint is one reachable address for a peer over a given transport.
type Endpoint struct {
	Address        string
	Protocol       ProtocolTag
	SignalStrength float64
	LatencyMS      float64
}

func (e Endpoint) dedupeKey() string { return e.Address + "|" + e.Protocol.String() }

// ConnectionMetrics tracks the live connection quality to a peer.
type ConnectionMetrics struct {
	SignalStrength float64
	BandwidthBps   uint64
	LatencyMS      float64
	Stability      float64
	ConnectedAt    time.Time
}

// Capabilities describes what a peer can do for the mesh.
type Capabilities struct {
	SupportedProtocols []ProtocolTag
	BandwidthBps       uint64
	RoutingCapacity    uint32
	AvailabilityPct    float64
}

func (c Capabilities) supports(p ProtocolTag) bool {
	for _, have := range c.SupportedProtocols {
		if have == p {
			return true
		}
	}
	return false
}

// DHTMeta carries optional Kademlia bookkeeping, plus the long-range
// routing region tag supplementing satellite/LoRa sightings (SPEC_FULL §3).
type DHTMeta struct {
	Distance      uint32
	BucketIndex   int
	LastContact   time.Time
	FailedAttempt int
	Region        string
}

// Tier classifies a peer by trust and uptime.
type Tier uint8

const (
	Tier1 Tier = iota + 1 // high trust, high uptime
	Tier2                 // moderate
	Tier3                 // low / unverified
)

// DiscoveryMethod records how a peer was first learned about.
type DiscoveryMethod uint8

const (
	DiscoveryUnknown DiscoveryMethod = iota
	DiscoveryUDPMulticast
	DiscoveryMDNS
	DiscoveryBluetoothLE
	DiscoveryWiFiDirect
	DiscoveryDHT
	DiscoveryBluetoothClassic
	DiscoveryPortScan
	DiscoveryLoRaWAN
	DiscoverySatellite
	DiscoveryHandshake
)

// Entry is the authoritative record of a known peer (spec §3.2).
type Entry struct {
	PeerID            UnifiedPeerId
	Endpoints         []Endpoint
	ConnectionMetrics ConnectionMetrics
	Capabilities      Capabilities
	DHT               *DHTMeta
	DiscoveryMethod   DiscoveryMethod
	FirstSeen         time.Time
	LastSeen          time.Time
	Tier              Tier
	TrustScore        float64
}

// mergeEndpoints merges e into the entry's endpoint list, deduplicating
// by (address, protocol) as required by spec §3.2.
func (e *Entry) mergeEndpoints(incoming []Endpoint) {
	seen := make(map[string]int, len(e.Endpoints))
	for i, ep := range e.Endpoints {
		seen[ep.dedupeKey()] = i
	}
	for _, ep := range incoming {
		if i, ok := seen[ep.dedupeKey()]; ok {
			e.Endpoints[i] = ep // refresh signal/latency
			continue
		}
		e.Endpoints = append(e.Endpoints, ep)
		seen[ep.dedupeKey()] = len(e.Endpoints) - 1
	}
}

// classifyTier derives Tier from trust score and uptime, matching spec
// §3.2's "tier monotonically classifies by trust + uptime".
func classifyTier(trust float64, uptimePct float64) Tier {
	switch {
	case trust >= 0.8 && uptimePct >= 0.95:
		return Tier1
	case trust >= 0.4 && uptimePct >= 0.5:
		return Tier2
	default:
		return Tier3
	}
}

func clampTrust(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
