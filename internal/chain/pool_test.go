package chain

import "testing"

func txWithOutput(chainID string, amount uint64) Transaction {
	return Transaction{
		Version: 1,
		ChainID: chainID,
		Type:    TxReward,
		Outputs: []TxOutput{{Address: "addr", Amount: amount}},
	}
}

func TestPoolAddRejectsChainIDMismatch(t *testing.T) {
	p := NewPool("zhtp-main")
	tx := txWithOutput("other-chain", 10)
	if err := p.Add(tx, nil); err == nil {
		t.Fatal("expected chain_id mismatch error")
	}
}

func TestPoolAddRejectsSystemTxWithInputs(t *testing.T) {
	p := NewPool("zhtp-main")
	tx := txWithOutput("zhtp-main", 10)
	tx.Inputs = []TxInput{{}}
	if err := p.Add(tx, nil); err == nil {
		t.Fatal("expected system transaction with inputs to be rejected")
	}
}

func TestPoolAddRejectsNonSystemTxWithoutInputs(t *testing.T) {
	p := NewPool("zhtp-main")
	tx := txWithOutput("zhtp-main", 10)
	tx.Type = TxPayment
	if err := p.Add(tx, nil); err == nil {
		t.Fatal("expected non-system transaction without inputs to be rejected")
	}
}

func TestPoolAddRejectsDuplicate(t *testing.T) {
	p := NewPool("zhtp-main")
	tx := txWithOutput("zhtp-main", 10)
	if err := p.Add(tx, nil); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := p.Add(tx, nil); err == nil {
		t.Fatal("expected duplicate rejection")
	}
}

func TestPoolPickFIFOAndEviction(t *testing.T) {
	p := NewPool("zhtp-main")
	a := txWithOutput("zhtp-main", 1)
	b := txWithOutput("zhtp-main", 2)
	if err := p.Add(a, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(b, nil); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", p.Len())
	}
	picked := p.Pick(1)
	if len(picked) != 1 || picked[0].Hash() != a.Hash() {
		t.Fatal("expected FIFO pick to return the first added transaction")
	}

	p.Evict(picked[0].Hash())
	if err := p.Add(picked[0], nil); err == nil {
		t.Fatal("expected evicted transaction to be blacklisted")
	}
	for i := 0; i < evictionWindow; i++ {
		p.Tick()
	}
	if err := p.Add(picked[0], nil); err != nil {
		t.Fatalf("expected blacklist to expire after eviction window: %v", err)
	}
}

func TestPoolRequeuePutsTxsBackAtFront(t *testing.T) {
	p := NewPool("zhtp-main")
	a := txWithOutput("zhtp-main", 1)
	b := txWithOutput("zhtp-main", 2)
	_ = p.Add(a, nil)
	_ = p.Add(b, nil)

	picked := p.Pick(2)
	p.Requeue(picked[:1])
	if p.Len() != 1 {
		t.Fatalf("expected 1 pending after requeue, got %d", p.Len())
	}
	snap := p.Snapshot()
	if len(snap) != 1 || snap[0].Hash() != picked[0].Hash() {
		t.Fatal("expected requeued transaction to be restored")
	}
}
