package storage

import "testing"

func TestDomainRegisterRejectsDuplicate(t *testing.T) {
	r := NewDomainRegistry()
	if _, err := r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("site.zhtp", "cid2", "did:zhtp:owner", HttpServe); err == nil {
		t.Fatal("expected re-registering an existing domain to fail")
	}
}

func TestDomainUpdateRequiresMatchingCAS(t *testing.T) {
	r := NewDomainRegistry()
	if _, err := r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Update("site.zhtp", "cid2", "wrong-expected"); err == nil {
		t.Fatal("expected CAS mismatch to be rejected")
	}
	rec, err := r.Update("site.zhtp", "cid2", "cid1")
	if err != nil {
		t.Fatalf("update with correct expected cid: %v", err)
	}
	if rec.CurrentManifestCID != "cid2" || rec.Version != 2 {
		t.Fatalf("expected version 2 pointing at cid2, got %+v", rec)
	}
}

func TestDomainRollbackRestoresPriorManifestAndBumpsVersion(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe)
	r.Update("site.zhtp", "cid2", "cid1")
	r.Update("site.zhtp", "cid3", "cid2")

	rec, err := r.Rollback("site.zhtp", 1) // history version 1 pointed at cid1
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rec.CurrentManifestCID != "cid1" {
		t.Fatalf("expected rollback to restore cid1, got %s", rec.CurrentManifestCID)
	}
	if rec.Version != 4 {
		t.Fatalf("expected rollback to bump version to max+1=4, got %d", rec.Version)
	}
}

func TestDomainResolveHistoricalVersion(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe)
	r.Update("site.zhtp", "cid2", "cid1")

	_, manifest, err := r.Resolve("site.zhtp", intPtr(1))
	if err != nil {
		t.Fatalf("resolve historical version: %v", err)
	}
	if manifest != "cid1" {
		t.Fatalf("expected version 1 to resolve to cid1, got %s", manifest)
	}
}

func intPtr(v int) *int { return &v }
