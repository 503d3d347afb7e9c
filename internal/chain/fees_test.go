package chain

import "testing"

func TestNetworkFeeScalesByPriority(t *testing.T) {
	low := NetworkFee(100, PriorityLow)
	norm := NetworkFee(100, PriorityNormal)
	high := NetworkFee(100, PriorityHigh)
	if !(low < norm && norm < high) {
		t.Fatalf("expected fee to increase with priority, got low=%d norm=%d high=%d", low, norm, high)
	}
}

func TestDAOFeeIsTwoPercent(t *testing.T) {
	if got := DAOFee(10000); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestCalculateFeeWithExemptionsSystemTxIsFree(t *testing.T) {
	net, dao, total := CalculateFeeWithExemptions(500, 10000, PriorityHigh, true)
	if net != 0 || dao != 0 || total != 0 {
		t.Fatalf("expected a system transaction to pay nothing, got net=%d dao=%d total=%d", net, dao, total)
	}
}

func TestCalculateFeeWithExemptionsRegularTxPays(t *testing.T) {
	net, dao, total := CalculateFeeWithExemptions(500, 10000, PriorityNormal, false)
	if net == 0 || dao == 0 || total != net+dao {
		t.Fatalf("expected a regular transaction to pay network+dao fee, got net=%d dao=%d total=%d", net, dao, total)
	}
}

func TestValidateFeeRejectsMismatch(t *testing.T) {
	tx := Transaction{Type: TxPayment, Inputs: []TxInput{{}}, Outputs: []TxOutput{{Address: "a", Amount: 1}}, Fee: 10}
	if err := ValidateFee(tx, 20); err == nil {
		t.Fatal("expected fee mismatch to be rejected")
	}
}

func TestValidateFeeRejectsSystemTxWithInputs(t *testing.T) {
	tx := Transaction{Type: TxReward, Inputs: []TxInput{{}}, Outputs: []TxOutput{{Address: "a", Amount: 1}}, Fee: 0}
	if err := ValidateFee(tx, 0); err == nil {
		t.Fatal("expected system transaction with inputs to be rejected")
	}
}

func TestValidateFeeRejectsEmptyOutputs(t *testing.T) {
	tx := Transaction{Type: TxReward, Fee: 0}
	if err := ValidateFee(tx, 0); err == nil {
		t.Fatal("expected a transaction with no outputs to be rejected")
	}
}
