package chain

import (
	"strings"
	"testing"
)

func TestBuildRewardMemoFormat(t *testing.T) {
	tx := BuildReward("zhtp-main", "alice", 500)
	want := "Economic TX: Reward - 500 ZHTP (Base: 0, DAO: 0)"
	if tx.Memo != want {
		t.Fatalf("memo = %q, want %q", tx.Memo, want)
	}
	if !tx.Type.isSystem() || len(tx.Inputs) != 0 {
		t.Fatal("expected Reward to be a system transaction with no inputs")
	}
}

func TestBuildUBIMemoMentionsUBI(t *testing.T) {
	tx := BuildUBI("zhtp-main", "bob", 100)
	if !strings.Contains(tx.Memo, "Universal Basic Income") {
		t.Fatalf("expected UBI memo to mention Universal Basic Income, got %q", tx.Memo)
	}
}

func TestBuildWelfareMemoMentionsService(t *testing.T) {
	tx := BuildWelfare("zhtp-main", "housing", "carol", 250)
	if !strings.Contains(tx.Memo, "housing") {
		t.Fatalf("expected welfare memo to mention the service name, got %q", tx.Memo)
	}
}

func TestBuildInfrastructureRewardSplitProportional(t *testing.T) {
	participants := []InfrastructureParticipant{
		{Address: "node-a", Routing: 10},
		{Address: "node-b", Routing: 30},
	}
	txs, err := BuildInfrastructureRewardSplit("zhtp-main", participants, 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 reward transactions, got %d", len(txs))
	}
	if txs[0].Outputs[0].Amount != 100 || txs[1].Outputs[0].Amount != 300 {
		t.Fatalf("expected proportional split 100/300, got %d/%d", txs[0].Outputs[0].Amount, txs[1].Outputs[0].Amount)
	}
}

func TestBuildInfrastructureRewardSplitZeroWorkIsError(t *testing.T) {
	_, err := BuildInfrastructureRewardSplit("zhtp-main", []InfrastructureParticipant{{Address: "a"}}, 100)
	if err == nil {
		t.Fatal("expected zero total work to be an error")
	}
}

func TestCapMintedValueDropsExcess(t *testing.T) {
	txs := []Transaction{
		BuildReward("zhtp-main", "a", 60),
		BuildReward("zhtp-main", "b", 60),
	}
	capped := capMintedValue(txs, 100)
	if len(capped) != 1 {
		t.Fatalf("expected one transaction to be dropped once the budget is exceeded, got %d kept", len(capped))
	}
}

func TestCapMintedValueKeepsNonSystemTxRegardless(t *testing.T) {
	payment := Transaction{Type: TxPayment, Inputs: []TxInput{{}}, Outputs: []TxOutput{{Address: "a", Amount: 1_000_000}}}
	capped := capMintedValue([]Transaction{payment}, 1)
	if len(capped) != 1 {
		t.Fatal("expected non-system transactions to never be capped by the inflation budget")
	}
}
