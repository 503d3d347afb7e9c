package discovery

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
	"zhtp-core/internal/zhtpcrypto"
)

var discoveryLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { discoveryLogger = l }

// dedupState is the coordinator's private record per deduplicated peer,
// tracking the earliest discovery method seen (spec §4.2: "preserving
// the earlier discovery method").
type dedupState struct {
	key             string
	firstDiscovered Protocol
	entry           peer.Entry
}

// Coordinator merges sightings across protocols, deduplicates them, and
// feeds the PeerRegistry (spec §4.2).
type Coordinator struct {
	registry *peer.Registry

	mu    sync.Mutex
	known map[string]*dedupState

	stats map[Protocol]*ProtocolStats

	localAddrs map[string]struct{}
}

// New builds a Coordinator bound to an existing PeerRegistry.
func New(reg *peer.Registry) *Coordinator {
	c := &Coordinator{
		registry:   reg,
		known:      make(map[string]*dedupState),
		stats:      make(map[Protocol]*ProtocolStats),
		localAddrs: localInterfaceAddrs(),
	}
	for _, p := range []Protocol{ProtoUDPMulticast, ProtoMDNS, ProtoBluetoothLE, ProtoWiFiDirect, ProtoDHT, ProtoBluetoothClassic, ProtoPortScan, ProtoLoRaWAN, ProtoSatellite} {
		c.stats[p] = &ProtocolStats{}
	}
	return c
}

func localInterfaceAddrs() map[string]struct{} {
	set := map[string]struct{}{"127.0.0.1": {}, "::1": {}}
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return set
	}
	for _, a := range ifaces {
		if ipNet, ok := a.(*net.IPNet); ok {
			set[ipNet.IP.String()] = struct{}{}
		}
	}
	return set
}

func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// isSelf reports whether a sighting's source address matches any local
// interface address, including loopback (spec §4.2 self-discovery
// filter).
func (c *Coordinator) isSelf(address string) bool {
	_, ok := c.localAddrs[hostOf(address)]
	return ok
}

func dedupKey(s Sighting) string {
	if s.PublicKey != nil {
		keyID := identity.Id{}
		copy(keyID[:], s.PublicKey.KeyID[:])
		return "kid:" + keyID.Hex()
	}
	return "addr:" + s.Address
}

// Ingest merges one sighting into the coordinator's dedup table and
// pushes the result into the PeerRegistry. Self-sightings are dropped
// silently.
func (c *Coordinator) Ingest(s Sighting) error {
	if c.isSelf(s.Address) {
		discoveryLogger.WithField("addr", s.Address).Debug("discovery: dropped self-sighting")
		return nil
	}
	if s.SeenAt.IsZero() {
		s.SeenAt = time.Now()
	}

	c.mu.Lock()
	key := dedupKey(s)
	st, existed := c.known[key]
	if !existed {
		st = &dedupState{key: key, firstDiscovered: s.Protocol}
	}

	endpoint := peer.Endpoint{Address: s.Address, Protocol: protocolToTransportTag(s.Protocol)}

	var nodeID identity.Id
	var pub identity.PublicKey
	haveID := false
	if s.NodeID != nil {
		nodeID = *s.NodeID
		haveID = true
	}
	if s.PublicKey != nil {
		pub = *s.PublicKey
		haveID = true
		if !existed || !existingHasPublicKey(st) {
			// fill in public_key if it was previously absent
			nodeID = keyIDAsIdentity(*s.PublicKey)
		}
	}
	var placeholder identity.Id
	copy(placeholder[:], zhtpcrypto.Sum([]byte(key)).Bytes())
	if !haveID {
		// No node_id yet: key the registry entry by a placeholder derived
		// from the dedup key, so distinct addresses stay distinct peers.
		nodeID = placeholder
	}

	if !existed {
		st.entry = peer.Entry{
			PeerID:          peer.UnifiedPeerId{NodeID: nodeID, PubKey: pub},
			Endpoints:       []peer.Endpoint{endpoint},
			DiscoveryMethod: protocolToDiscoveryMethod(st.firstDiscovered),
			FirstSeen:       s.SeenAt,
			LastSeen:        s.SeenAt,
			TrustScore:      0.2,
		}
		if s.Region != "" {
			st.entry.DHT = &peer.DHTMeta{Region: s.Region}
		}
		c.known[key] = st
	} else {
		st.entry.Endpoints = append(st.entry.Endpoints, endpoint)
		st.entry.LastSeen = s.SeenAt
		if haveID && (st.entry.PeerID.NodeID == identity.Id{} || st.entry.PeerID.NodeID == placeholder) {
			st.entry.PeerID.NodeID = nodeID
			st.entry.PeerID.PubKey = pub
		}
		if s.Region != "" {
			if st.entry.DHT == nil {
				st.entry.DHT = &peer.DHTMeta{}
			}
			st.entry.DHT.Region = s.Region
		}
	}
	entryCopy := st.entry
	c.mu.Unlock()

	return c.registry.Upsert(entryCopy)
}

func existingHasPublicKey(st *dedupState) bool {
	return st.entry.PeerID.PubKey.KeyID != [32]byte{}
}

// RecordSuccess/RecordFailure update per-protocol statistics; each call
// also counts as one attempt.
func (c *Coordinator) RecordSuccess(p Protocol, timeToFirst time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[p].recordSuccess(timeToFirst)
}

func (c *Coordinator) RecordFailure(p Protocol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[p].recordFailure()
}

// Stats returns a snapshot of per-protocol statistics.
func (c *Coordinator) Stats() map[Protocol]ProtocolStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Protocol]ProtocolStats, len(c.stats))
	for p, s := range c.stats {
		out[p] = *s
	}
	return out
}

// Run executes a strategy's protocol set until the strategy timeout,
// invoking the source for each configured protocol and ingesting
// whatever sightings it yields. The source abstraction lets tests supply
// synthetic sightings without touching real sockets.
type Source interface {
	Discover(ctx context.Context, p Protocol) ([]Sighting, error)
}

func (c *Coordinator) Run(ctx context.Context, strategy Strategy, src Source) error {
	ctx, cancel := context.WithTimeout(ctx, strategy.Timeout)
	defer cancel()

	for _, p := range strategy.Protocols {
		start := time.Now()
		sightings, err := src.Discover(ctx, p)
		if err != nil {
			c.RecordFailure(p)
			discoveryLogger.WithError(err).WithField("protocol", p).Warn("discovery: protocol attempt failed")
			continue
		}
		for _, s := range sightings {
			s.Protocol = p
			if err := c.Ingest(s); err != nil {
				discoveryLogger.WithError(err).Warn("discovery: ingest failed")
			}
		}
		if len(sightings) > 0 {
			c.RecordSuccess(p, time.Since(start))
		} else {
			c.RecordFailure(p)
		}
	}
	return nil
}

// keyIDAsIdentity reduces a PublicKey to the identity.Id its key_id
// represents. Kept local to discovery: the KeyID field already equals
// hash(signature_pk) per identity package invariants.
func keyIDAsIdentity(pk identity.PublicKey) identity.Id {
	var id identity.Id
	copy(id[:], pk.KeyID[:])
	return id
}

// announcement mirrors the UDP multicast announcement payload accepted
// by the active discovery pipeline (spec §4.2 step 2): 32-byte node_id
// followed by a 2-byte big-endian mesh_port.
type announcement struct {
	NodeID   identity.Id
	MeshPort uint16
}

func parseAnnouncement(b []byte) (announcement, bool) {
	if len(b) < 34 {
		return announcement{}, false
	}
	var a announcement
	copy(a.NodeID[:], b[:32])
	a.MeshPort = binary.BigEndian.Uint16(b[32:34])
	return a, true
}
