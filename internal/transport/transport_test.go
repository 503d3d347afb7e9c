package transport

import (
	"testing"
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/peer"
	"zhtp-core/internal/zhtpcrypto"
)

func newTestIdentity(t *testing.T, seed byte) *identity.Identity {
	t.Helper()
	master := make([]byte, 32)
	for i := range master {
		master[i] = seed
	}
	id, err := identity.New(master)
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return id
}

func TestHandshakeRoundTrip(t *testing.T) {
	alice := newTestIdentity(t, 1)
	bob := newTestIdentity(t, 2)

	aliceHello, err := BuildHello(alice, []peer.ProtocolTag{peer.ProtocolIP}, 9001)
	if err != nil {
		t.Fatalf("alice hello: %v", err)
	}
	bobHello, err := BuildHello(bob, []peer.ProtocolTag{peer.ProtocolIP}, 9002)
	if err != nil {
		t.Fatalf("bob hello: %v", err)
	}

	aliceNonces := NewNonceCache()
	bobNonces := NewNonceCache()

	initRes, err := CompleteAsInitiator(alice, aliceHello, bobHello, aliceNonces)
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}

	respRes, err := CompleteAsResponder(bob, bobHello, aliceHello, initRes.KEMCiphertext, initRes.Signature, bobNonces)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}

	aliceConn, err := FinalizeInitiator(initRes.Pending, respRes.Signature)
	if err != nil {
		t.Fatalf("finalize initiator: %v", err)
	}

	if aliceConn.SessionID != respRes.Connection.SessionID {
		t.Fatalf("session_id mismatch: %x vs %x", aliceConn.SessionID, respRes.Connection.SessionID)
	}
	if string(aliceConn.MasterKey) != string(respRes.Connection.MasterKey) {
		t.Fatalf("master_key mismatch between initiator and responder")
	}
	if !aliceConn.ZHTPAuthenticated || !respRes.Connection.ZHTPAuthenticated {
		t.Fatalf("expected both sides authenticated")
	}
}

func TestHandshakeRejectsEmptyInitiatorSignature(t *testing.T) {
	alice := newTestIdentity(t, 1)
	bob := newTestIdentity(t, 2)

	aliceHello, _ := BuildHello(alice, nil, 9001)
	bobHello, _ := BuildHello(bob, nil, 9002)

	initRes, err := CompleteAsInitiator(alice, aliceHello, bobHello, NewNonceCache())
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}

	if _, err := CompleteAsResponder(bob, bobHello, aliceHello, initRes.KEMCiphertext, nil, NewNonceCache()); err == nil {
		t.Fatalf("expected missing initiator signature to be rejected")
	}
}

func TestHandshakeRejectsEmptyResponderSignature(t *testing.T) {
	alice := newTestIdentity(t, 1)
	bob := newTestIdentity(t, 2)

	aliceHello, _ := BuildHello(alice, nil, 9001)
	bobHello, _ := BuildHello(bob, nil, 9002)

	initRes, err := CompleteAsInitiator(alice, aliceHello, bobHello, NewNonceCache())
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}
	if _, err := CompleteAsResponder(bob, bobHello, aliceHello, initRes.KEMCiphertext, initRes.Signature, NewNonceCache()); err != nil {
		t.Fatalf("responder: %v", err)
	}

	if _, err := FinalizeInitiator(initRes.Pending, nil); err == nil {
		t.Fatalf("expected missing responder signature to be rejected")
	}
}

func TestHandshakeRejectsForgedResponderSignature(t *testing.T) {
	alice := newTestIdentity(t, 1)
	bob := newTestIdentity(t, 2)
	eve := newTestIdentity(t, 3)

	aliceHello, _ := BuildHello(alice, nil, 9001)
	bobHello, _ := BuildHello(bob, nil, 9002)

	initRes, err := CompleteAsInitiator(alice, aliceHello, bobHello, NewNonceCache())
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}

	forged := zhtpcrypto.Sign(eve.Private.SignatureSK, initRes.Pending.transcriptHash.Bytes())
	if _, err := FinalizeInitiator(initRes.Pending, forged); err == nil {
		t.Fatalf("expected forged responder signature to be rejected")
	}
}

func TestHandshakeRejectsBadNodeID(t *testing.T) {
	alice := newTestIdentity(t, 1)
	bob := newTestIdentity(t, 2)

	aliceHello, _ := BuildHello(alice, nil, 9001)
	bobHello, _ := BuildHello(bob, nil, 9002)
	bobHello.NodeID[0] ^= 0xFF // corrupt claimed node_id

	if _, err := CompleteAsInitiator(alice, aliceHello, bobHello, NewNonceCache()); err == nil {
		t.Fatalf("expected node_id mismatch to be rejected")
	}
}

func TestNonceCacheRejectsReplay(t *testing.T) {
	nc := NewNonceCache()
	var nonce [16]byte
	nonce[0] = 7
	if err := nc.CheckAndConsume(nonce); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := nc.CheckAndConsume(nonce); err == nil {
		t.Fatalf("expected replayed nonce to be rejected")
	}
}

func TestBestEndpointPicksHighestScore(t *testing.T) {
	entry := peer.Entry{
		Endpoints: []peer.Endpoint{
			{Address: "slow", Protocol: peer.ProtocolIP, LatencyMS: 200},
			{Address: "fast", Protocol: peer.ProtocolIP, LatencyMS: 10},
		},
		ConnectionMetrics: peer.ConnectionMetrics{Stability: 0.9},
	}
	ep, ok := BestEndpoint(entry)
	if !ok {
		t.Fatalf("expected an endpoint")
	}
	if ep.Address != "fast" {
		t.Fatalf("expected lowest-latency endpoint to win, got %s", ep.Address)
	}
}

func TestFragmentReassembly(t *testing.T) {
	store := newReassemblyStore()
	var reqID [16]byte
	reqID[0] = 9

	payload := []byte("the quick brown fox jumps over the lazy dog")
	frags := Split(reqID, payload, 10)
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments")
	}

	var out []byte
	var complete bool
	for _, f := range frags {
		var err error
		out, complete, err = store.Ingest(f)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	if !complete {
		t.Fatalf("expected reassembly to complete after all fragments")
	}
	if string(out) != string(payload) {
		t.Fatalf("reassembled payload mismatch: got %q", out)
	}
}

func TestFragmentReassemblyDiscardsStale(t *testing.T) {
	store := newReassemblyStore()
	var reqID [16]byte
	reqID[0] = 3

	frags := Split(reqID, []byte("hello world"), 5)
	_, complete, err := store.Ingest(frags[0])
	if err != nil || complete {
		t.Fatalf("expected incomplete after first fragment: complete=%v err=%v", complete, err)
	}

	store.mu.Lock()
	store.msgs[reqID].started = time.Now().Add(-fragmentReassemblyTimeout - time.Second)
	store.mu.Unlock()

	// A late fragment after the timeout window restarts the buffer rather
	// than completing it with the stale parts.
	_, complete, err = store.Ingest(frags[1])
	if err != nil {
		t.Fatalf("ingest after staleness: %v", err)
	}
	if complete {
		t.Fatalf("expected restarted buffer to still be incomplete with only one fresh fragment")
	}
}

func TestRouterPublishAndDisconnect(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	local := newTestIdentity(t, 5)
	rt := NewRouter(local, reg)

	remote := newTestIdentity(t, 6)
	conn := MeshConnection{Peer: remote.IdentityID(), ZHTPAuthenticated: true, QuantumSecure: true}
	if err := rt.PublishConnection(peer.ProtocolIP, "10.0.0.2:9000", conn); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := rt.connectionFor(peer.ProtocolIP, "10.0.0.2:9000", remote.IdentityID()); !ok {
		t.Fatalf("expected live connection after publish")
	}

	rt.Disconnect(peer.ProtocolIP, "10.0.0.2:9000", remote.IdentityID())
	if _, ok := rt.connectionFor(peer.ProtocolIP, "10.0.0.2:9000", remote.IdentityID()); ok {
		t.Fatalf("expected connection removed after disconnect")
	}
	if _, ok := reg.Get(remote.IdentityID()); !ok {
		t.Fatalf("expected peer to remain in registry after endpoint disconnect")
	}
}

func TestReportSignatureMismatchDecrementsTrust(t *testing.T) {
	reg := peer.NewRegistry()
	defer reg.Close()
	local := newTestIdentity(t, 5)
	rt := NewRouter(local, reg)

	remote := newTestIdentity(t, 6)
	conn := MeshConnection{Peer: remote.IdentityID()}
	if err := rt.PublishConnection(peer.ProtocolIP, "10.0.0.3:9000", conn); err != nil {
		t.Fatalf("publish: %v", err)
	}
	before, _ := reg.Get(remote.IdentityID())

	if err := rt.ReportSignatureMismatch(peer.ProtocolIP, "10.0.0.3:9000", remote.IdentityID()); err != nil {
		t.Fatalf("report mismatch: %v", err)
	}
	after, _ := reg.Get(remote.IdentityID())
	if after.TrustScore >= before.TrustScore {
		t.Fatalf("expected trust score to decrease: before=%v after=%v", before.TrustScore, after.TrustScore)
	}
	if _, ok := rt.connectionFor(peer.ProtocolIP, "10.0.0.3:9000", remote.IdentityID()); ok {
		t.Fatalf("expected connection torn down on signature mismatch")
	}
}
