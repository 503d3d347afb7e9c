// Package discovery implements the DiscoveryCoordinator: merges peer
// sightings across transports, deduplicates them, and feeds the peer
// registry. Grounded on the teacher's pubsub-based gossip in
// core/peer_management.go and original_source's discovery_coordinator.rs.
package discovery

import (
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
)

// Protocol is a discovery transport, ordered by priority (lower wins
// ties during dedup merges), per spec §4.2.
type Protocol uint8

const (
	ProtoUDPMulticast Protocol = iota + 1
	ProtoMDNS
	ProtoBluetoothLE
	ProtoWiFiDirect
	ProtoDHT
	ProtoBluetoothClassic
	ProtoPortScan
	ProtoLoRaWAN
	ProtoSatellite
)

// Priority returns the protocol's priority rank; lower is higher
// priority, matching the ordering in spec §4.2.
func (p Protocol) Priority() int { return int(p) }

func (p Protocol) String() string {
	switch p {
	case ProtoUDPMulticast:
		return "udp-multicast"
	case ProtoMDNS:
		return "mdns"
	case ProtoBluetoothLE:
		return "bluetooth-le"
	case ProtoWiFiDirect:
		return "wifi-direct"
	case ProtoDHT:
		return "dht"
	case ProtoBluetoothClassic:
		return "bluetooth-classic"
	case ProtoPortScan:
		return "port-scan"
	case ProtoLoRaWAN:
		return "lorawan"
	case ProtoSatellite:
		return "satellite"
	default:
		return "unknown"
	}
}

// Sighting is a single observation of a peer on some protocol, prior to
// being merged into the registry.
type Sighting struct {
	Address   string
	Protocol  Protocol
	PublicKey *identity.PublicKey // may be absent pre-handshake
	NodeID    *identity.Id        // may be absent pre-handshake
	Region    string              // coarse geographic tag (satellite/LoRa)
	SeenAt    time.Time
}

// Strategy bounds the protocol set and timeout of one discovery pass
// (spec §4.2).
type Strategy struct {
	Name      string
	Protocols []Protocol
	Timeout   time.Duration
}

var (
	// FastLocal covers UdpMulticast + MDns with a ~2s timeout.
	FastLocal = Strategy{Name: "fast-local", Protocols: []Protocol{ProtoUDPMulticast, ProtoMDNS}, Timeout: 2 * time.Second}
	// Thorough adds BLE + WiFi-Direct, ~10s timeout.
	Thorough = Strategy{Name: "thorough", Protocols: []Protocol{ProtoUDPMulticast, ProtoMDNS, ProtoBluetoothLE, ProtoWiFiDirect}, Timeout: 10 * time.Second}
	// Global adds DHT + satellite, ~30s timeout.
	Global = Strategy{Name: "global", Protocols: []Protocol{ProtoUDPMulticast, ProtoMDNS, ProtoBluetoothLE, ProtoWiFiDirect, ProtoDHT, ProtoSatellite}, Timeout: 30 * time.Second}
	// LowPower is local-only with a long interval.
	LowPower = Strategy{Name: "low-power", Protocols: []Protocol{ProtoUDPMulticast, ProtoMDNS}, Timeout: 2 * time.Minute}
)

// ProtocolStats tracks per-protocol discovery outcomes (spec §4.2
// "Statistics").
type ProtocolStats struct {
	Attempts          uint64
	Successes         uint64
	Failures          uint64
	meanTimeToFirstNs int64
	samples           uint64
}

func (s *ProtocolStats) recordSuccess(timeToFirst time.Duration) {
	s.Attempts++
	s.Successes++
	s.samples++
	// rolling mean
	s.meanTimeToFirstNs += (timeToFirst.Nanoseconds() - s.meanTimeToFirstNs) / int64(s.samples)
}

func (s *ProtocolStats) recordFailure() {
	s.Attempts++
	s.Failures++
}

// MeanTimeToFirstPeer reports the rolling mean time-to-first-peer for the
// protocol.
func (s ProtocolStats) MeanTimeToFirstPeer() time.Duration {
	return time.Duration(s.meanTimeToFirstNs)
}

func protocolToDiscoveryMethod(p Protocol) peer.DiscoveryMethod {
	switch p {
	case ProtoUDPMulticast:
		return peer.DiscoveryUDPMulticast
	case ProtoMDNS:
		return peer.DiscoveryMDNS
	case ProtoBluetoothLE:
		return peer.DiscoveryBluetoothLE
	case ProtoWiFiDirect:
		return peer.DiscoveryWiFiDirect
	case ProtoDHT:
		return peer.DiscoveryDHT
	case ProtoBluetoothClassic:
		return peer.DiscoveryBluetoothClassic
	case ProtoPortScan:
		return peer.DiscoveryPortScan
	case ProtoLoRaWAN:
		return peer.DiscoveryLoRaWAN
	case ProtoSatellite:
		return peer.DiscoverySatellite
	default:
		return peer.DiscoveryUnknown
	}
}

func protocolToTransportTag(p Protocol) peer.ProtocolTag {
	switch p {
	case ProtoBluetoothLE, ProtoBluetoothClassic:
		return peer.ProtocolBLE
	case ProtoWiFiDirect:
		return peer.ProtocolWiFiDirect
	case ProtoLoRaWAN:
		return peer.ProtocolLoRaWAN
	case ProtoSatellite:
		return peer.ProtocolSatellite
	case ProtoDHT:
		return peer.ProtocolDHT
	default:
		return peer.ProtocolIP
	}
}
