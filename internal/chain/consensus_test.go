package chain

import (
	"testing"

	"zhtp-core/internal/zhtpcrypto"
)

func TestSelectProposerEmptyValidatorSet(t *testing.T) {
	if _, ok := SelectProposer(nil, 1, 0); ok {
		t.Fatal("expected no proposer for an empty validator set")
	}
}

func TestSelectProposerDeterministic(t *testing.T) {
	validators := []Validator{
		{DID: "did:zhtp:a", IdentityHash: zhtpcrypto.Sum([]byte("a"))},
		{DID: "did:zhtp:b", IdentityHash: zhtpcrypto.Sum([]byte("b"))},
		{DID: "did:zhtp:c", IdentityHash: zhtpcrypto.Sum([]byte("c"))},
	}
	p1, ok1 := SelectProposer(validators, 10, 3)
	p2, ok2 := SelectProposer(validators, 10, 3)
	if !ok1 || !ok2 || p1.DID != p2.DID {
		t.Fatal("expected proposer selection to be deterministic for the same height/round")
	}
}

func TestSelectProposerVariesByRound(t *testing.T) {
	validators := []Validator{
		{DID: "did:zhtp:a", IdentityHash: zhtpcrypto.Sum([]byte("a"))},
		{DID: "did:zhtp:b", IdentityHash: zhtpcrypto.Sum([]byte("b"))},
		{DID: "did:zhtp:c", IdentityHash: zhtpcrypto.Sum([]byte("c"))},
		{DID: "did:zhtp:d", IdentityHash: zhtpcrypto.Sum([]byte("d"))},
	}
	seen := make(map[string]bool)
	for round := 0; round < roundsPerEpoch; round++ {
		p, ok := SelectProposer(validators, 1, round)
		if !ok {
			t.Fatal("expected a proposer for a non-empty validator set")
		}
		seen[p.DID] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected proposer selection to vary across rounds")
	}
}

func TestIsAuthorizedProposerRequiresIdentityAndControl(t *testing.T) {
	registry := newIdentityRegistry()
	identityHash := zhtpcrypto.Sum([]byte("alice-identity"))
	registry.upsert(IdentityRecord{DID: "did:zhtp:alice", ControlledNodes: map[string]struct{}{"node-aa": {}}})

	proposer := Validator{DID: "did:zhtp:alice", IdentityHash: identityHash}

	if !IsAuthorizedProposer(registry, "did:zhtp:alice", "node-aa", identityHash, proposer) {
		t.Fatal("expected matching identity hash and controlled node to authorize")
	}
	if IsAuthorizedProposer(registry, "did:zhtp:alice", "node-bb", identityHash, proposer) {
		t.Fatal("expected an uncontrolled node id to be unauthorized")
	}
	if IsAuthorizedProposer(registry, "did:zhtp:alice", "node-aa", zhtpcrypto.Sum([]byte("wrong")), proposer) {
		t.Fatal("expected a mismatched identity hash to be unauthorized")
	}
}
