// Package transport implements the TransportRouter: mutual mesh
// handshake, per-protocol connection tables, bridging, and fragment
// reassembly. Grounded on the teacher's core/network.go (libp2p host +
// pubsub wiring, peer table under a dedicated mutex) generalized to the
// mesh's own mutual-auth handshake (spec §4.3).
package transport

import (
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
)

// MeshHandshake is the wire message exchanged by both parties during the
// mutual handshake (spec §4.3 step 1).
type MeshHandshake struct {
	NodeID             identity.Id
	PublicKey          identity.PublicKey
	SupportedProtocols []peer.ProtocolTag
	MeshPort           uint16
	Version            uint32
	Nonce              [16]byte
}

// ProtocolVersion is the local node's handshake version.
const ProtocolVersion = 1

// MeshConnection is the authenticated record published once a handshake
// completes (spec §4.3 step 7).
type MeshConnection struct {
	Peer              identity.Id
	Protocol          peer.ProtocolTag
	Address           string
	BandwidthCapacity uint64
	LatencyMS         float64
	ConnectedAt       time.Time
	ZHTPAuthenticated bool
	QuantumSecure     bool
	PeerSignaturePK   []byte
	SharedSecret      []byte
	SessionID         [16]byte
	MasterKey         []byte
}

// FragmentHeader precedes each body chunk of a message split across
// multiple small-MTU transport frames (spec §4.3 "Fragment reassembly").
type FragmentHeader struct {
	RequestID  [16]byte
	Index      uint16
	Total      uint16
	PayloadLen uint32
}

// Fragment is one wire unit: header plus its body slice.
type Fragment struct {
	Header FragmentHeader
	Body   []byte
}

const fragmentReassemblyTimeout = 30 * time.Second

// stabilityScore ranks a connection for bridging purposes: higher is
// better (spec §4.3 "Bridging": stability_score × (1 / latency_ms)).
func stabilityScore(stability, latencyMS float64) float64 {
	if latencyMS <= 0 {
		latencyMS = 1
	}
	return stability * (1 / latencyMS)
}
