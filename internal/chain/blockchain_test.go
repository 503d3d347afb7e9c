package chain

import (
	"testing"

	"zhtp-core/internal/zhtpcrypto"
)

func TestBlockchainTickMinesInBootstrapMode(t *testing.T) {
	bc := New("zhtp-main", Bootstrap)
	if err := bc.Pool().Add(BuildReward("zhtp-main", "alice", 10), nil); err != nil {
		t.Fatalf("add reward: %v", err)
	}

	bc.tick(nil)

	if len(bc.blocks) != 1 {
		t.Fatalf("expected one block to be mined, got %d", len(bc.blocks))
	}
	if bc.pool.Len() != 0 {
		t.Fatal("expected the pending pool to be drained after mining")
	}
}

func TestBlockchainTickSkipsRoundOnEmptyPool(t *testing.T) {
	bc := New("zhtp-main", Bootstrap)
	bc.tick(nil)
	if len(bc.blocks) != 0 {
		t.Fatal("expected no block to be mined from an empty pool")
	}
	if bc.round != 1 {
		t.Fatalf("expected round to advance once on an empty pool, got %d", bc.round)
	}
}

func TestBlockchainTickSkipsUnauthorizedProposer(t *testing.T) {
	bc := New("zhtp-main", Standard)
	validators := []Validator{{DID: "did:zhtp:other", IdentityHash: zhtpcrypto.Sum([]byte("other"))}}
	bc.SetLocalProposer("did:zhtp:me", "node-me", zhtpcrypto.Sum([]byte("me")), validators)
	_ = bc.Pool().Add(BuildReward("zhtp-main", "alice", 10), nil)

	bc.tick(nil)

	if len(bc.blocks) != 0 {
		t.Fatal("expected an unauthorized local proposer to skip mining")
	}
	if bc.round == 0 {
		t.Fatal("expected round to advance on an unauthorized turn")
	}
}

func TestApplyMinedBlockEvictsOnConflict(t *testing.T) {
	bc := New("zhtp-main", Bootstrap)
	bad := Transaction{
		Version: 1, ChainID: "zhtp-main", Type: TxPayment,
		Inputs:  []TxInput{{Ref: OutPoint{TxHash: zhtpcrypto.Sum([]byte("missing")), Index: 0}, Nullifier: zhtpcrypto.Sum([]byte("n"))}},
		Outputs: []TxOutput{{Address: "bob", Amount: 5}},
	}
	_ = bc.Pool().Add(bad, nil)

	blk := Block{Transactions: []Transaction{bad}}
	if err := bc.ApplyMinedBlock(blk); err == nil {
		t.Fatal("expected application of a block spending a missing UTXO to fail")
	}
	if err := bc.Pool().Add(bad, nil); err == nil {
		t.Fatal("expected the offending transaction to be blacklisted after eviction")
	}
}

func TestRequireValidatorSetForMiningOnStandard(t *testing.T) {
	bc := New("zhtp-main", Standard)
	if err := bc.RequireValidatorSetForMining(); err == nil {
		t.Fatal("expected standard profile with no validators to refuse mining")
	}
	bc.SetLocalProposer("did:zhtp:me", "node-me", zhtpcrypto.Sum([]byte("me")), []Validator{{DID: "did:zhtp:me"}})
	if err := bc.RequireValidatorSetForMining(); err != nil {
		t.Fatalf("expected a non-empty validator set to be accepted: %v", err)
	}
}

func TestBlockchainTickRefusesMiningOnStandardWithEmptyValidatorSet(t *testing.T) {
	bc := New("zhtp-main", Standard)
	if err := bc.Pool().Add(BuildReward("zhtp-main", "alice", 10), nil); err != nil {
		t.Fatalf("add reward: %v", err)
	}

	bc.tick(nil)

	if len(bc.blocks) != 0 {
		t.Fatal("expected standard profile with no validator set to refuse mining, not mine a block")
	}
	if bc.pool.Len() != 1 {
		t.Fatal("expected the pending transaction to remain queued, not be consumed")
	}
}

func TestGlobalProviderRoundTrip(t *testing.T) {
	bc := New("zhtp-main", Bootstrap)
	InstallGlobal(bc)
	if Global() != bc {
		t.Fatal("expected the installed instance to be returned by Global")
	}
}
