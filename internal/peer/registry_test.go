package peer

import (
	"errors"
	"testing"
	"time"

	"zhtp-core/internal/identity"
)

func testPeerID(b byte) UnifiedPeerId {
	var id identity.Id
	id[0] = b
	return UnifiedPeerId{NodeID: id, DID: id.DID()}
}

func TestUpsertInsertAndDedupEndpoints(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	pid := testPeerID(1)
	err := r.Upsert(Entry{
		PeerID:    pid,
		Endpoints: []Endpoint{{Address: "10.0.0.1:9000", Protocol: ProtocolIP}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Re-upsert with a duplicate endpoint and one new endpoint.
	err = r.Upsert(Entry{
		PeerID: pid,
		Endpoints: []Endpoint{
			{Address: "10.0.0.1:9000", Protocol: ProtocolIP, LatencyMS: 5},
			{Address: "ble-uuid-xyz", Protocol: ProtocolBLE},
		},
	})
	if err != nil {
		t.Fatalf("upsert merge: %v", err)
	}

	got, ok := r.Get(pid.Key())
	if !ok {
		t.Fatalf("peer not found")
	}
	if len(got.Endpoints) != 2 {
		t.Fatalf("expected 2 deduplicated endpoints, got %d", len(got.Endpoints))
	}
}

func TestUpsertRejectsEmptyEndpoints(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	err := r.Upsert(Entry{PeerID: testPeerID(1)})
	if err == nil {
		t.Fatalf("expected error for empty endpoints")
	}
}

func TestLastSeenNeverBeforeFirstSeen(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	pid := testPeerID(2)
	now := time.Now()
	err := r.Upsert(Entry{
		PeerID:    pid,
		Endpoints: []Endpoint{{Address: "a", Protocol: ProtocolIP}},
		FirstSeen: now,
		LastSeen:  now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := r.Get(pid.Key())
	if got.LastSeen.Before(got.FirstSeen) {
		t.Fatalf("last_seen before first_seen: %v < %v", got.LastSeen, got.FirstSeen)
	}
}

// recordingObserver records every event it sees, optionally failing at a
// given index (1-based count of calls received so far).
type recordingObserver struct {
	name    string
	calls   *[]string
	failAt  int
	seenCnt int
}

func (o *recordingObserver) OnPeerEvent(ev Event) error {
	o.seenCnt++
	*o.calls = append(*o.calls, o.name)
	if o.failAt != 0 && o.seenCnt == o.failAt {
		return errors.New("observer refuses")
	}
	return nil
}

func TestObserverAtomicity(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var calls []string
	obs1 := &recordingObserver{name: "obs1", calls: &calls}
	obs2 := &recordingObserver{name: "obs2", calls: &calls, failAt: 1}
	obs3 := &recordingObserver{name: "obs3", calls: &calls}

	for _, o := range []Observer{obs1, obs2, obs3} {
		if err := r.RegisterObserver(o); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	pid := testPeerID(3)
	err := r.Upsert(Entry{PeerID: pid, Endpoints: []Endpoint{{Address: "a", Protocol: ProtocolIP}}})
	if err == nil {
		t.Fatalf("expected upsert to fail due to observer #2 error")
	}

	if len(calls) != 2 || calls[0] != "obs1" || calls[1] != "obs2" {
		t.Fatalf("expected obs1 then obs2 called, obs3 skipped; got %v", calls)
	}

	if _, ok := r.Get(pid.Key()); ok {
		t.Fatalf("peer should not be visible after observer rejection")
	}
}

func TestObserverCap(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	r.SetObserverLimits(2, time.Hour)

	var calls []string
	for i := 0; i < 2; i++ {
		if err := r.RegisterObserver(&recordingObserver{name: "x", calls: &calls}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if err := r.RegisterObserver(&recordingObserver{name: "y", calls: &calls}); err == nil {
		t.Fatalf("expected capacity error past the observer cap")
	}
}

func TestBatchSingleEvent(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var calls []string
	r.RegisterObserver(&recordingObserver{name: "obs", calls: &calls})

	p1, p2 := testPeerID(10), testPeerID(11)
	updates := []Update{
		{Upsert: &Entry{PeerID: p1, Endpoints: []Endpoint{{Address: "a", Protocol: ProtocolIP}}}},
		{Upsert: &Entry{PeerID: p2, Endpoints: []Endpoint{{Address: "b", Protocol: ProtocolIP}}}},
	}
	if err := r.Batch(updates); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one dispatched event for the batch, got %d", len(calls))
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 peers after batch, got %d", r.Count())
	}
}

func TestRemoveUnknownPeerIsNoop(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	var zero identity.Id
	if err := r.Remove(zero); err != nil {
		t.Fatalf("remove unknown peer should not error: %v", err)
	}
}
