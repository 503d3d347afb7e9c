package syncsvc

import (
	"testing"
	"time"
)

func TestStartRejectsSecondInFlightForSamePeer(t *testing.T) {
	c := New(time.Minute)
	if _, err := c.Start("peer-a", 1, TypeHeaders); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := c.Start("peer-a", 2, TypeHeaders); err == nil {
		t.Fatal("expected a second in-flight sync for the same peer to be rejected")
	}
	if _, err := c.Start("peer-b", 3, TypeHeaders); err != nil {
		t.Fatalf("a different peer should be unaffected: %v", err)
	}
}

func TestCompleteRequiresMatchingRequestID(t *testing.T) {
	c := New(time.Minute)
	c.Start("peer-a", 7, TypeBlockRange)
	if c.Complete("peer-a", 8) {
		t.Fatal("expected a mismatched request id to not complete the sync")
	}
	if !c.Complete("peer-a", 7) {
		t.Fatal("expected the matching request id to complete the sync")
	}
	if _, ok := c.Pending("peer-a"); ok {
		t.Fatal("expected no pending sync after completion")
	}
}

func TestStartAllowsNewSyncAfterCompletion(t *testing.T) {
	c := New(time.Minute)
	c.Start("peer-a", 1, TypeHeaders)
	c.Complete("peer-a", 1)
	if _, err := c.Start("peer-a", 2, TypeHeaders); err != nil {
		t.Fatalf("expected a fresh sync to be allowed after completion: %v", err)
	}
}

func TestGCRemovesExpiredEntriesAndAllowsRestart(t *testing.T) {
	c := New(-time.Second) // already expired on creation
	c.Start("peer-a", 1, TypeHeaders)
	dropped := c.GC()
	if len(dropped) != 1 || dropped[0] != "peer-a" {
		t.Fatalf("expected peer-a to be garbage collected, got %v", dropped)
	}
	if _, err := c.Start("peer-a", 2, TypeHeaders); err != nil {
		t.Fatalf("expected a new sync to be startable after GC: %v", err)
	}
}

func TestPendingIgnoresExpiredEntryWithoutGC(t *testing.T) {
	c := New(-time.Second)
	c.Start("peer-a", 1, TypeHeaders)
	if _, ok := c.Pending("peer-a"); ok {
		t.Fatal("expected an expired entry to not be reported as pending")
	}
}
