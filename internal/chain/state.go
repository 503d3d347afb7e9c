package chain

import (
	"sync"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// UTXOSet is the mapping (tx_hash, output_index) -> output, mutated only
// by block application (spec §3.3).
type UTXOSet struct {
	mu      sync.RWMutex
	outputs map[OutPoint]TxOutput
	spent   map[zhtpcrypto.Hash]struct{} // nullifiers seen
}

func newUTXOSet() *UTXOSet {
	return &UTXOSet{outputs: make(map[OutPoint]TxOutput), spent: make(map[zhtpcrypto.Hash]struct{})}
}

func (u *UTXOSet) get(op OutPoint) (TxOutput, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out, ok := u.outputs[op]
	return out, ok
}

func (u *UTXOSet) nullifierSeen(n zhtpcrypto.Hash) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.spent[n]
	return ok
}

// IdentityRegistry maps DID -> IdentityRecord (spec §3.3).
type IdentityRegistry struct {
	mu      sync.RWMutex
	records map[string]*IdentityRecord
}

func newIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{records: make(map[string]*IdentityRecord)}
}

// Get returns a copy of a DID's record.
func (r *IdentityRegistry) Get(did string) (IdentityRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[did]
	if !ok {
		return IdentityRecord{}, false
	}
	return *rec, true
}

// ControlsNode reports whether did's controlled_nodes includes nodeID
// (spec §4.4 "Proposer selection").
func (r *IdentityRegistry) ControlsNode(did, nodeIDHex string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[did]
	if !ok {
		return false
	}
	_, ok = rec.ControlledNodes[nodeIDHex]
	return ok
}

func (r *IdentityRegistry) upsert(rec IdentityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.DID] = &rec
}

// Snapshot returns a copy of every registered identity, for persistence.
func (r *IdentityRegistry) Snapshot() []IdentityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IdentityRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// restore replaces the registry's contents wholesale, used when loading
// persisted state.
func (r *IdentityRegistry) restore(recs []IdentityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*IdentityRecord, len(recs))
	for i := range recs {
		rec := recs[i]
		r.records[rec.DID] = &rec
	}
}

// ApplyBlock validates and applies a block's transactions to the UTXO
// set atomically: either every transaction applies cleanly or none does
// (spec §3.3 invariants, §4.4 step 5).
func (u *UTXOSet) ApplyBlock(blk Block) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	// Pre-validate the whole block before mutating anything.
	seenThisBlock := make(map[zhtpcrypto.Hash]struct{})
	for _, tx := range blk.Transactions {
		if tx.Type.isSystem() {
			continue
		}
		for _, in := range tx.Inputs {
			if _, ok := u.outputs[in.Ref]; !ok {
				return zhtperrors.New(zhtperrors.KindConsistency, "utxo missing for input")
			}
			if _, ok := u.spent[in.Nullifier]; ok {
				return zhtperrors.New(zhtperrors.KindConsistency, "nullifier already seen")
			}
			if _, ok := seenThisBlock[in.Nullifier]; ok {
				return zhtperrors.New(zhtperrors.KindConsistency, "double-spend within block")
			}
			seenThisBlock[in.Nullifier] = struct{}{}
		}
	}

	for _, tx := range blk.Transactions {
		txHash := tx.Hash()
		if !tx.Type.isSystem() {
			for _, in := range tx.Inputs {
				delete(u.outputs, in.Ref)
				u.spent[in.Nullifier] = struct{}{}
			}
		}
		for i, out := range tx.Outputs {
			u.outputs[OutPoint{TxHash: txHash, Index: uint32(i)}] = out
		}
	}
	return nil
}

// Snapshot returns a defensive copy of the outputs, for persistence.
func (u *UTXOSet) Snapshot() (map[OutPoint]TxOutput, map[zhtpcrypto.Hash]struct{}) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	outs := make(map[OutPoint]TxOutput, len(u.outputs))
	for k, v := range u.outputs {
		outs[k] = v
	}
	spent := make(map[zhtpcrypto.Hash]struct{}, len(u.spent))
	for k := range u.spent {
		spent[k] = struct{}{}
	}
	return outs, spent
}

// restore replaces the UTXO set's contents wholesale, used when loading
// persisted state.
func (u *UTXOSet) restore(outs map[OutPoint]TxOutput, spent map[zhtpcrypto.Hash]struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.outputs = outs
	u.spent = spent
}
