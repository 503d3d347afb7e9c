package chain

import (
	"sync"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// evictionWindow is how many mining ticks an evicted transaction's hash
// stays blacklisted, preventing immediate reinsertion of a transaction
// that caused a block application failure (spec §7 "Policy").
const evictionWindow = 10

// Pool is the pending transaction mempool. Grounded on the teacher's
// TxPool (core/transactions.go): an ordered FIFO queue plus a lookup map
// guarded by one mutex.
type Pool struct {
	mu       sync.Mutex
	queue    []Transaction
	lookup   map[zhtpcrypto.Hash]struct{}
	evicted  map[zhtpcrypto.Hash]int // hash -> ticks remaining on the blacklist
	chainID  string
}

// NewPool builds an empty Pool bound to a chain id (validated against
// every admitted transaction's chain_id, spec §4.4 "Pending pool").
func NewPool(chainID string) *Pool {
	return &Pool{
		lookup:  make(map[zhtpcrypto.Hash]struct{}),
		evicted: make(map[zhtpcrypto.Hash]int),
		chainID: chainID,
	}
}

// ValidateFunc checks a regular transaction's zero-knowledge proofs and
// inputs against the UTXO set; supplied by the blockchain so Pool stays
// independent of UTXOSet's concrete verification strategy.
type ValidateFunc func(tx Transaction) error

// Add admits tx into the pool after checking its chain_id and its
// input/output shape, then running validate (when non-nil) for the
// UTXO/nullifier/signature/fee checks (spec §4.4 "Pending pool"). The
// version field is not checked.
func (p *Pool) Add(tx Transaction, validate ValidateFunc) error {
	if tx.ChainID != p.chainID {
		return zhtperrors.New(zhtperrors.KindProtocol, "chain_id mismatch")
	}
	if !tx.Type.isSystem() && len(tx.Inputs) == 0 {
		return zhtperrors.New(zhtperrors.KindProtocol, "non-system transaction must have at least one input")
	}
	if tx.Type.isSystem() && len(tx.Inputs) != 0 {
		return zhtperrors.New(zhtperrors.KindProtocol, "system transaction must have empty inputs")
	}
	if len(tx.Outputs) == 0 {
		return zhtperrors.New(zhtperrors.KindProtocol, "transaction must have at least one output")
	}
	if validate != nil {
		if err := validate(tx); err != nil {
			return err
		}
	}

	h := tx.Hash()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, blacklisted := p.evicted[h]; blacklisted {
		return zhtperrors.New(zhtperrors.KindConsistency, "transaction recently evicted, blacklisted for a cooldown")
	}
	if _, dup := p.lookup[h]; dup {
		return zhtperrors.New(zhtperrors.KindProtocol, "transaction already in pool")
	}
	p.lookup[h] = struct{}{}
	p.queue = append(p.queue, tx)
	return nil
}

// Pick removes up to max transactions in FIFO order for block assembly
// (spec §4.4 "Mining loop" step 3).
func (p *Pool) Pick(max int) []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if max <= 0 || max > len(p.queue) {
		max = len(p.queue)
	}
	out := make([]Transaction, max)
	copy(out, p.queue[:max])
	p.queue = p.queue[max:]
	for _, tx := range out {
		delete(p.lookup, tx.Hash())
	}
	return out
}

// Requeue returns unused picked transactions to the front of the queue,
// e.g. when a candidate block is rejected before being applied.
func (p *Pool) Requeue(txs []Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(txs, p.queue...)
	for _, tx := range txs {
		p.lookup[tx.Hash()] = struct{}{}
	}
}

// Evict blacklists a transaction hash for evictionWindow mining ticks,
// called when block application rejects it (spec §7 "Policy").
func (p *Pool) Evict(h zhtpcrypto.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lookup, h)
	p.evicted[h] = evictionWindow
}

// Tick ages the eviction blacklist by one mining round.
func (p *Pool) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h, remaining := range p.evicted {
		if remaining <= 1 {
			delete(p.evicted, h)
			continue
		}
		p.evicted[h] = remaining - 1
	}
}

// Len reports the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Snapshot returns a copy of pending transactions for persistence.
func (p *Pool) Snapshot() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, len(p.queue))
	copy(out, p.queue)
	return out
}

// restore replaces the pool's queue wholesale, used when loading
// persisted state.
func (p *Pool) restore(txs []Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append([]Transaction(nil), txs...)
	p.lookup = make(map[zhtpcrypto.Hash]struct{}, len(txs))
	for _, tx := range txs {
		p.lookup[tx.Hash()] = struct{}{}
	}
}
