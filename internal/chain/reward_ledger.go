package chain

import (
	"sync"

	"zhtp-core/internal/zhtperrors"
)

// recipientRewardRecord is one address's rolling reward history, grounded
// on original_source's RewardManager (lifetime_rewards + last_calculation),
// trimmed to what infrastructure-reward double-claim detection needs.
type recipientRewardRecord struct {
	lifetimeTotal  uint64
	lastHeight     uint64
	claimedHeights map[uint64]uint64 // height -> claimed amount
}

// RewardLedger caps per-recipient infrastructure-reward shares and
// rejects a second claim at the same block height, supplementing the
// fire-and-forget reward transactions spec.md §4.4 describes (spec.md
// is silent on double-claim protection; original_source's
// reward_management.rs tracks exactly this per recipient).
type RewardLedger struct {
	mu      sync.Mutex
	records map[string]*recipientRewardRecord
}

// NewRewardLedger builds an empty ledger.
func NewRewardLedger() *RewardLedger {
	return &RewardLedger{records: make(map[string]*recipientRewardRecord)}
}

// RecordClaim registers recipient's reward of amount at height, failing
// with a Consistency error if that recipient already claimed at the same
// height.
func (l *RewardLedger) RecordClaim(recipient string, height, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[recipient]
	if !ok {
		rec = &recipientRewardRecord{claimedHeights: make(map[uint64]uint64)}
		l.records[recipient] = rec
	}
	if _, claimed := rec.claimedHeights[height]; claimed {
		return zhtperrors.New(zhtperrors.KindConsistency, "reward already claimed by recipient at this height")
	}
	rec.claimedHeights[height] = amount
	rec.lifetimeTotal += amount
	rec.lastHeight = height
	return nil
}

// RewardClaim is one flattened (recipient, height, amount) entry, for
// persistence.
type RewardClaim struct {
	Recipient string
	Height    uint64
	Amount    uint64
}

// Snapshot returns every recorded claim, for persistence.
func (l *RewardLedger) Snapshot() []RewardClaim {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []RewardClaim
	for recipient, rec := range l.records {
		for height, amount := range rec.claimedHeights {
			out = append(out, RewardClaim{Recipient: recipient, Height: height, Amount: amount})
		}
	}
	return out
}

// restore replaces the ledger's contents wholesale, used when loading
// persisted state. Claims are replayed in isolation (no double-claim
// checking against each other, since they were already accepted once).
func (l *RewardLedger) restore(claims []RewardClaim) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*recipientRewardRecord)
	for _, c := range claims {
		rec, ok := l.records[c.Recipient]
		if !ok {
			rec = &recipientRewardRecord{claimedHeights: make(map[uint64]uint64)}
			l.records[c.Recipient] = rec
		}
		rec.claimedHeights[c.Height] = c.Amount
		rec.lifetimeTotal += c.Amount
		if c.Height > rec.lastHeight {
			rec.lastHeight = c.Height
		}
	}
}

// LifetimeTotal returns a recipient's cumulative claimed reward amount.
func (l *RewardLedger) LifetimeTotal(recipient string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[recipient]
	if !ok {
		return 0
	}
	return rec.lifetimeTotal
}

// FilterDoubleClaims drops infrastructure-reward transactions whose
// recipient already claimed at height, recording the survivors. Used by
// block assembly to enforce the per-height-per-recipient cap before a
// candidate is mined.
func (l *RewardLedger) FilterDoubleClaims(txs []Transaction, height uint64) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type != TxInfrastructureReward || len(tx.Outputs) == 0 {
			out = append(out, tx)
			continue
		}
		if err := l.RecordClaim(tx.Outputs[0].Address, height, tx.Outputs[0].Amount); err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}
