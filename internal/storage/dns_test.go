package storage

import (
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestResolveAnswerServesARecordForSovereignDomain(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe)

	rr, err := ResolveAnswer(r, "site.zhtp", dns.TypeA, "203.0.113.1", 300*time.Second, DefaultGatewayCapabilities)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	a, ok := rr.(*dns.A)
	if !ok {
		t.Fatalf("expected *dns.A, got %T", rr)
	}
	if a.A.String() != "203.0.113.1" {
		t.Fatalf("expected gateway ip in answer, got %s", a.A.String())
	}
}

func TestResolveAnswerRejectsNonSovereignTLD(t *testing.T) {
	r := NewDomainRegistry()
	if _, err := ResolveAnswer(r, "example.com", dns.TypeA, "203.0.113.1", time.Minute, DefaultGatewayCapabilities); err == nil {
		t.Fatal("expected a non-sovereign TLD to be rejected")
	}
}

func TestResolveAnswerNotImplementedForNonAQuery(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.sov", "cid1", "did:zhtp:owner", HttpServe)
	if _, err := ResolveAnswer(r, "site.sov", dns.TypeMX, "203.0.113.1", time.Minute, DefaultGatewayCapabilities); err == nil {
		t.Fatal("expected a non-A query to be rejected")
	}
}

func TestResolveAnswerNXDOMAINOnUnknownDomain(t *testing.T) {
	r := NewDomainRegistry()
	if _, err := ResolveAnswer(r, "ghost.zhtp", dns.TypeA, "203.0.113.1", time.Minute, DefaultGatewayCapabilities); err == nil {
		t.Fatal("expected an unregistered domain to be rejected")
	}
}

func TestResolveAnswerNXDOMAINOnExpired(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.zhtp", "cid1", "did:zhtp:owner", HttpServe)
	past := time.Now().Add(-time.Hour)
	rec, _, _ := r.Resolve("site.zhtp", nil)
	rec.ExpiresAt = &past
	r.records["site.zhtp"] = rec

	if _, err := ResolveAnswer(r, "site.zhtp", dns.TypeA, "203.0.113.1", time.Minute, DefaultGatewayCapabilities); err == nil {
		t.Fatal("expected an expired domain to be rejected")
	}
}

func TestResolveAnswerRejectsUnservedCapability(t *testing.T) {
	r := NewDomainRegistry()
	r.Register("site.zhtp", "cid1", "did:zhtp:owner", DownloadOnly)
	if _, err := ResolveAnswer(r, "site.zhtp", dns.TypeA, "203.0.113.1", time.Minute, DefaultGatewayCapabilities); err == nil {
		t.Fatal("expected a capability outside the gateway's allowed set to be rejected")
	}
}
