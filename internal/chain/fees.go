package chain

import "zhtp-core/internal/zhtperrors"

// Priority is a coarse fee-market tier affecting network_fee (spec
// §4.4 "Fee rules").
type Priority uint8

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

const (
	baseFeePerByte   = 1
	priorityMultLow  = 1
	priorityMultNorm = 2
	priorityMultHigh = 4
	daoFeeBasisPts   = 200 // 2%
)

// NetworkFee implements network_fee(size, priority): a base per-byte
// rate scaled by a priority multiplier.
func NetworkFee(size int, priority Priority) uint64 {
	mult := uint64(priorityMultNorm)
	switch priority {
	case PriorityLow:
		mult = priorityMultLow
	case PriorityHigh:
		mult = priorityMultHigh
	}
	return uint64(size) * baseFeePerByte * mult
}

// DAOFee implements dao_fee(amount) = amount * 2%.
func DAOFee(amount uint64) uint64 {
	return (amount * daoFeeBasisPts) / 10000
}

// CalculateFeeWithExemptions implements spec §4.4: system transactions
// pay nothing; regular ones pay network_fee + dao_fee.
func CalculateFeeWithExemptions(size int, amount uint64, priority Priority, isSystem bool) (networkFee, daoFee, total uint64) {
	if isSystem {
		return 0, 0, 0
	}
	networkFee = NetworkFee(size, priority)
	daoFee = DAOFee(amount)
	return networkFee, daoFee, networkFee + daoFee
}

// ValidateFee checks the blockchain-level invariants from spec §4.4
// "Fee rules": fee consistency, input/output emptiness by tx type.
func ValidateFee(tx Transaction, economyTotalFee uint64) error {
	if tx.Fee != economyTotalFee {
		return zhtperrors.New(zhtperrors.KindEconomic, "fee mismatch: blockchain vs economy total")
	}
	if tx.Type.isSystem() && len(tx.Inputs) != 0 {
		return zhtperrors.New(zhtperrors.KindEconomic, "system transaction must have empty inputs")
	}
	if !tx.Type.isSystem() && len(tx.Inputs) == 0 {
		return zhtperrors.New(zhtperrors.KindEconomic, "non-system transaction must have at least one input")
	}
	if len(tx.Outputs) == 0 {
		return zhtperrors.New(zhtperrors.KindEconomic, "transaction must have at least one output")
	}
	return nil
}
