package chain

import (
	"testing"

	"zhtp-core/internal/zhtpcrypto"
)

func mintingTx(to string, amount uint64) Transaction {
	return Transaction{Version: 1, ChainID: "zhtp-main", Type: TxReward, Outputs: []TxOutput{{Address: to, Amount: amount}}}
}

func TestApplyBlockMintsOutputs(t *testing.T) {
	u := newUTXOSet()
	tx := mintingTx("alice", 100)
	blk := Block{Transactions: []Transaction{tx}}
	if err := u.ApplyBlock(blk); err != nil {
		t.Fatalf("apply block: %v", err)
	}
	out, ok := u.get(OutPoint{TxHash: tx.Hash(), Index: 0})
	if !ok || out.Amount != 100 {
		t.Fatal("expected minted output to be present in the UTXO set")
	}
}

func TestApplyBlockRejectsMissingUTXO(t *testing.T) {
	u := newUTXOSet()
	spend := Transaction{
		Version: 1, ChainID: "zhtp-main", Type: TxPayment,
		Inputs:  []TxInput{{Ref: OutPoint{TxHash: zhtpcrypto.Sum([]byte("nope")), Index: 0}, Nullifier: zhtpcrypto.Sum([]byte("n1"))}},
		Outputs: []TxOutput{{Address: "bob", Amount: 5}},
	}
	blk := Block{Transactions: []Transaction{spend}}
	if err := u.ApplyBlock(blk); err == nil {
		t.Fatal("expected missing UTXO to be rejected")
	}
	if len(u.outputs) != 0 {
		t.Fatal("expected no partial mutation on rejected block")
	}
}

func TestApplyBlockRejectsDoubleSpendWithinBlock(t *testing.T) {
	u := newUTXOSet()
	mint := mintingTx("alice", 100)
	_ = u.ApplyBlock(Block{Transactions: []Transaction{mint}})

	ref := OutPoint{TxHash: mint.Hash(), Index: 0}
	nullifier := zhtpcrypto.Sum([]byte("spend-once"))
	spendA := Transaction{Version: 1, ChainID: "zhtp-main", Type: TxPayment, Inputs: []TxInput{{Ref: ref, Nullifier: nullifier}}, Outputs: []TxOutput{{Address: "bob", Amount: 50}}}
	spendB := Transaction{Version: 1, ChainID: "zhtp-main", Type: TxPayment, Inputs: []TxInput{{Ref: ref, Nullifier: nullifier}}, Outputs: []TxOutput{{Address: "carol", Amount: 50}}}

	before := len(u.outputs)
	err := u.ApplyBlock(Block{Transactions: []Transaction{spendA, spendB}})
	if err == nil {
		t.Fatal("expected double-spend within block to be rejected")
	}
	if len(u.outputs) != before {
		t.Fatal("expected block rejection to leave the UTXO set untouched")
	}
}

func TestApplyBlockRejectsAlreadySpentNullifier(t *testing.T) {
	u := newUTXOSet()
	mint := mintingTx("alice", 100)
	_ = u.ApplyBlock(Block{Transactions: []Transaction{mint}})

	ref := OutPoint{TxHash: mint.Hash(), Index: 0}
	nullifier := zhtpcrypto.Sum([]byte("spend-once"))
	spend := Transaction{Version: 1, ChainID: "zhtp-main", Type: TxPayment, Inputs: []TxInput{{Ref: ref, Nullifier: nullifier}}, Outputs: []TxOutput{{Address: "bob", Amount: 50}}}
	if err := u.ApplyBlock(Block{Transactions: []Transaction{spend}}); err != nil {
		t.Fatalf("first spend should apply: %v", err)
	}

	mint2 := mintingTx("alice", 100)
	replay := Transaction{Version: 1, ChainID: "zhtp-main", Type: TxPayment, Inputs: []TxInput{{Ref: OutPoint{TxHash: mint2.Hash(), Index: 0}, Nullifier: nullifier}}, Outputs: []TxOutput{{Address: "mallory", Amount: 50}}}
	_ = u.ApplyBlock(Block{Transactions: []Transaction{mint2}})
	if err := u.ApplyBlock(Block{Transactions: []Transaction{replay}}); err == nil {
		t.Fatal("expected a previously-spent nullifier to be rejected across blocks")
	}
}

func TestIdentityRegistryControlsNode(t *testing.T) {
	r := newIdentityRegistry()
	r.upsert(IdentityRecord{DID: "did:zhtp:alice", ControlledNodes: map[string]struct{}{"node-aa": {}}})
	if !r.ControlsNode("did:zhtp:alice", "node-aa") {
		t.Fatal("expected registered node to be controlled")
	}
	if r.ControlsNode("did:zhtp:alice", "node-bb") {
		t.Fatal("expected unregistered node to not be controlled")
	}
	if r.ControlsNode("did:zhtp:bob", "node-aa") {
		t.Fatal("expected unknown DID to control nothing")
	}
}

func TestIdentityRegistrySnapshotRestoreRoundTrip(t *testing.T) {
	r := newIdentityRegistry()
	r.upsert(IdentityRecord{DID: "did:zhtp:alice", ControlledNodes: map[string]struct{}{"node-aa": {}}})
	snap := r.Snapshot()

	r2 := newIdentityRegistry()
	r2.restore(snap)
	if !r2.ControlsNode("did:zhtp:alice", "node-aa") {
		t.Fatal("expected restored registry to preserve controlled nodes")
	}
}
