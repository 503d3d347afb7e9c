package chain

import (
	"fmt"

	"zhtp-core/internal/zhtperrors"
)

// Grounded on the teacher's core/dao.go / core/coin.go economic helper
// shape (system transactions minting value, memo-tagged), generalized to
// spec §4.4's named economic transaction builders.

// BuildPayment constructs a regular payment transaction with one output
// paying amount to `to` and Fee = network_fee + dao_fee (spec §4.4
// "Payment"). It carries a single placeholder input for the caller to
// fill; it does not debit the sender or credit dao_fee to any treasury
// fund.
func BuildPayment(chainID, from, to string, amount uint64, priority Priority, size int) (Transaction, error) {
	networkFee, daoFee, total := CalculateFeeWithExemptions(size, amount, priority, false)
	_ = total
	return Transaction{
		Version: 1,
		ChainID: chainID,
		Type:    TxPayment,
		Inputs:  []TxInput{{}}, // caller fills in the real UTXO reference(s)
		Outputs: []TxOutput{{Address: to, Amount: amount}},
		Fee:     networkFee + daoFee,
		Memo:    fmt.Sprintf("Payment: %d to %s", amount, to),
	}, nil
}

// BuildReward constructs a system Reward transaction (spec §4.4
// "Reward").
func BuildReward(chainID, recipient string, amount uint64) Transaction {
	return Transaction{
		Version: 1,
		ChainID: chainID,
		Type:    TxReward,
		Outputs: []TxOutput{{Address: recipient, Amount: amount}},
		Fee:     0,
		Memo:    fmt.Sprintf("Economic TX: Reward - %d ZHTP (Base: 0, DAO: 0)", amount),
	}
}

// BuildUBI constructs one system UBI transaction per verified citizen
// (spec §4.4 "UBI").
func BuildUBI(chainID, recipient string, amount uint64) Transaction {
	return Transaction{
		Version: 1,
		ChainID: chainID,
		Type:    TxUBI,
		Outputs: []TxOutput{{Address: recipient, Amount: amount}},
		Fee:     0,
		Memo:    fmt.Sprintf("Economic TX: Universal Basic Income - %d ZHTP to %s", amount, recipient),
	}
}

// BuildWelfare constructs a system Welfare transaction for a named
// service (spec §4.4 "Welfare").
func BuildWelfare(chainID, service, recipient string, amount uint64) Transaction {
	return Transaction{
		Version: 1,
		ChainID: chainID,
		Type:    TxWelfare,
		Outputs: []TxOutput{{Address: recipient, Amount: amount}},
		Fee:     0,
		Memo:    fmt.Sprintf("Economic TX: Welfare Distribution - %s - %d ZHTP to %s", service, amount, recipient),
	}
}

// capMintedValue drops each system transaction whose outputs would push
// the cumulative minted value in txs over budget; later system
// transactions that still fit are kept, as are all non-system ones,
// rather than rejecting the whole candidate (Open Question decision:
// minted-value cap per block).
func capMintedValue(txs []Transaction, budget uint64) []Transaction {
	var minted uint64
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Type.isSystem() {
			out = append(out, tx)
			continue
		}
		var txValue uint64
		for _, o := range tx.Outputs {
			txValue += o.Amount
		}
		if minted+txValue > budget {
			continue
		}
		minted += txValue
		out = append(out, tx)
	}
	return out
}

// InfrastructureParticipant is one recipient of an infrastructure reward
// split, weighted by its routing/storage/compute contribution (spec
// §4.4 "Infrastructure reward split").
type InfrastructureParticipant struct {
	Address string
	Routing uint64
	Storage uint64
	Compute uint64
}

func (p InfrastructureParticipant) work() uint64 { return p.Routing + p.Storage + p.Compute }

// BuildInfrastructureRewardSplit distributes pool proportionally to each
// participant's work share; shares below 1 are skipped. total_work = 0
// is an Economic error (spec §4.4).
func BuildInfrastructureRewardSplit(chainID string, participants []InfrastructureParticipant, pool uint64) ([]Transaction, error) {
	var totalWork uint64
	for _, p := range participants {
		totalWork += p.work()
	}
	if totalWork == 0 {
		return nil, zhtperrors.New(zhtperrors.KindEconomic, "infrastructure reward split: zero total work")
	}

	var out []Transaction
	for _, p := range participants {
		share := (p.work() * pool) / totalWork
		if share < 1 {
			continue
		}
		out = append(out, Transaction{
			Version: 1,
			ChainID: chainID,
			Type:    TxInfrastructureReward,
			Outputs: []TxOutput{{Address: p.Address, Amount: share}},
			Fee:     0,
			Memo:    fmt.Sprintf("Economic TX: Infrastructure Reward - %d ZHTP to %s", share, p.Address),
		})
	}
	return out, nil
}
