package chain

import (
	"sync"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// maxEdgeHeaders bounds the edge-node header store (spec §4.4
// "Edge-node mode": "bounded header store (max_headers = 500)").
const maxEdgeHeaders = 500

// HeaderStore is the edge-node substitute for a full Blockchain: it
// keeps only the most recent headers, relying on a full node to serve
// inclusion proofs on demand rather than building blocks itself.
type HeaderStore struct {
	mu      sync.RWMutex
	headers []BlockHeader
	max     int
}

// NewHeaderStore builds a HeaderStore bounded to maxEdgeHeaders.
func NewHeaderStore() *HeaderStore {
	return &HeaderStore{max: maxEdgeHeaders}
}

// Append records a new header, evicting the oldest once the store is at
// capacity (spec §4.4 "Edge-node mode").
func (s *HeaderStore) Append(h BlockHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, h)
	if len(s.headers) > s.max {
		s.headers = s.headers[len(s.headers)-s.max:]
	}
}

// Tip returns the most recently appended header.
func (s *HeaderStore) Tip() (BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.headers) == 0 {
		return BlockHeader{}, false
	}
	return s.headers[len(s.headers)-1], true
}

// ByHeight finds a retained header by height.
func (s *HeaderStore) ByHeight(height uint64) (BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.headers {
		if h.Height == height {
			return h, true
		}
	}
	return BlockHeader{}, false
}

// Len reports the number of retained headers.
func (s *HeaderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.headers)
}

// MerkleStep is one sibling hash and its side in an inclusion proof
// path, ordered from leaf to root.
type MerkleStep struct {
	Sibling   zhtpcrypto.Hash
	LeftSided bool
}

// InclusionProof authenticates one transaction's membership in a
// block's merkle root without needing the whole block body (spec §4.4
// "Edge-node mode": "headers + inclusion proofs on demand").
type InclusionProof struct {
	Leaf  zhtpcrypto.Hash
	Steps []MerkleStep
}

// GenerateInclusionProof builds the sibling path for the transaction at
// txIndex within blk, computed by a full node that still holds the
// block body.
func GenerateInclusionProof(blk Block, txIndex int) (InclusionProof, error) {
	if txIndex < 0 || txIndex >= len(blk.Transactions) {
		return InclusionProof{}, zhtperrors.New(zhtperrors.KindProtocol, "inclusion proof: transaction index out of range")
	}

	layer := make([]zhtpcrypto.Hash, len(blk.Transactions))
	for i, tx := range blk.Transactions {
		layer[i] = tx.Hash()
	}

	proof := InclusionProof{Leaf: layer[txIndex]}
	idx := txIndex
	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}
		siblingIdx := idx ^ 1
		proof.Steps = append(proof.Steps, MerkleStep{Sibling: layer[siblingIdx], LeftSided: idx%2 == 1})

		next := make([]zhtpcrypto.Hash, len(layer)/2)
		for i := 0; i < len(next); i++ {
			next[i] = zhtpcrypto.Sum(layer[2*i].Bytes(), layer[2*i+1].Bytes())
		}
		layer = next
		idx /= 2
	}
	return proof, nil
}

// VerifyInclusionProof recomputes the merkle root from proof and
// compares it against root.
func VerifyInclusionProof(root zhtpcrypto.Hash, proof InclusionProof) bool {
	cur := proof.Leaf
	for _, step := range proof.Steps {
		if step.LeftSided {
			cur = zhtpcrypto.Sum(step.Sibling.Bytes(), cur.Bytes())
		} else {
			cur = zhtpcrypto.Sum(cur.Bytes(), step.Sibling.Bytes())
		}
	}
	return cur == root
}
