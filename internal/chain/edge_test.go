package chain

import "testing"

func TestHeaderStoreBoundedEviction(t *testing.T) {
	s := NewHeaderStore()
	s.max = 3
	for h := uint64(0); h < 5; h++ {
		s.Append(BlockHeader{Height: h})
	}
	if s.Len() != 3 {
		t.Fatalf("expected bounded store to retain 3 headers, got %d", s.Len())
	}
	if _, ok := s.ByHeight(0); ok {
		t.Fatal("expected the oldest header to have been evicted")
	}
	if _, ok := s.ByHeight(4); !ok {
		t.Fatal("expected the newest header to be retained")
	}
}

func TestInclusionProofRoundTrip(t *testing.T) {
	txs := []Transaction{
		mintingTx("a", 1),
		mintingTx("b", 2),
		mintingTx("c", 3),
	}
	blk := Block{Transactions: txs}
	blk.Header.MerkleRoot = merkleRoot(txs)

	for i := range txs {
		proof, err := GenerateInclusionProof(blk, i)
		if err != nil {
			t.Fatalf("generate proof for index %d: %v", i, err)
		}
		if !VerifyInclusionProof(blk.Header.MerkleRoot, proof) {
			t.Fatalf("expected inclusion proof for index %d to verify", i)
		}
	}
}

func TestInclusionProofRejectsOutOfRange(t *testing.T) {
	blk := Block{Transactions: []Transaction{mintingTx("a", 1)}}
	if _, err := GenerateInclusionProof(blk, 5); err == nil {
		t.Fatal("expected out-of-range index to be rejected")
	}
}

func TestInclusionProofFailsOnTamperedLeaf(t *testing.T) {
	txs := []Transaction{mintingTx("a", 1), mintingTx("b", 2)}
	blk := Block{Transactions: txs}
	root := merkleRoot(txs)
	proof, _ := GenerateInclusionProof(blk, 0)
	proof.Leaf[0] ^= 0xFF
	if VerifyInclusionProof(root, proof) {
		t.Fatal("expected a tampered leaf to fail verification")
	}
}
