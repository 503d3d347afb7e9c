package discovery

import (
	"context"
	"testing"
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
)

func testPublicKey(b byte) identity.PublicKey {
	var pk identity.PublicKey
	pk.KeyID[0] = b
	return pk
}

func TestIngestDropsSelfSighting(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	c := New(reg)

	if err := c.Ingest(Sighting{Address: "127.0.0.1:9000", Protocol: ProtoUDPMulticast}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if reg.Count() != 0 {
		t.Fatalf("expected self-sighting to be dropped, registry has %d peers", reg.Count())
	}
}

func TestIngestDedupByKeyID(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	c := New(reg)

	pk := testPublicKey(7)
	s1 := Sighting{Address: "10.0.0.5:9000", Protocol: ProtoUDPMulticast, PublicKey: &pk}
	s2 := Sighting{Address: "10.0.0.5:9001", Protocol: ProtoMDNS, PublicKey: &pk}

	if err := c.Ingest(s1); err != nil {
		t.Fatalf("ingest s1: %v", err)
	}
	if err := c.Ingest(s2); err != nil {
		t.Fatalf("ingest s2: %v", err)
	}
	if reg.Count() != 1 {
		t.Fatalf("expected sightings with the same key_id to dedup to one peer, got %d", reg.Count())
	}

	id := keyIDAsIdentity(pk)
	entry, ok := reg.Get(id)
	if !ok {
		t.Fatalf("expected peer keyed by key_id")
	}
	if len(entry.Endpoints) != 2 {
		t.Fatalf("expected both endpoints merged, got %d", len(entry.Endpoints))
	}
}

func TestIngestDedupByAddressWithoutPublicKey(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	c := New(reg)

	addr := "10.0.0.9:9000"
	if err := c.Ingest(Sighting{Address: addr, Protocol: ProtoUDPMulticast}); err != nil {
		t.Fatalf("ingest first: %v", err)
	}
	if err := c.Ingest(Sighting{Address: addr, Protocol: ProtoMDNS}); err != nil {
		t.Fatalf("ingest second: %v", err)
	}
	if reg.Count() != 1 {
		t.Fatalf("expected address-only sightings to dedup, got %d peers", reg.Count())
	}
}

func TestRecordSuccessFailureStats(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	c := New(reg)

	c.RecordSuccess(ProtoUDPMulticast, 10*time.Millisecond)
	c.RecordSuccess(ProtoUDPMulticast, 20*time.Millisecond)
	c.RecordFailure(ProtoUDPMulticast)

	stats := c.Stats()[ProtoUDPMulticast]
	if stats.Attempts != 3 || stats.Successes != 2 || stats.Failures != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.MeanTimeToFirstPeer() <= 0 {
		t.Fatalf("expected positive mean time to first peer")
	}
}

type fakeSource struct {
	sightings map[Protocol][]Sighting
}

func (f *fakeSource) Discover(ctx context.Context, p Protocol) ([]Sighting, error) {
	return f.sightings[p], nil
}

func TestRunIngestsAcrossStrategy(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	c := New(reg)

	src := &fakeSource{sightings: map[Protocol][]Sighting{
		ProtoUDPMulticast: {{Address: "10.1.1.1:9000"}},
		ProtoMDNS:         {{Address: "10.1.1.2:9000"}},
	}}

	if err := c.Run(context.Background(), FastLocal, src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reg.Count() != 2 {
		t.Fatalf("expected 2 peers discovered, got %d", reg.Count())
	}
}

func TestParseAnnouncementRejectsShortPayload(t *testing.T) {
	if _, ok := parseAnnouncement([]byte{1, 2, 3}); ok {
		t.Fatalf("expected short payload to be rejected")
	}
}

func TestParseAnnouncementRoundTrip(t *testing.T) {
	var payload [34]byte
	payload[0] = 0xAB
	payload[32] = 0x23
	payload[33] = 0x28 // 0x2328 = 9000

	ann, ok := parseAnnouncement(payload[:])
	if !ok {
		t.Fatalf("expected well-formed announcement to parse")
	}
	if ann.NodeID[0] != 0xAB {
		t.Fatalf("node_id not parsed correctly")
	}
	if ann.MeshPort != 9000 {
		t.Fatalf("expected mesh_port 9000, got %d", ann.MeshPort)
	}
}
