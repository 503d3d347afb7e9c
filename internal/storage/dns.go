package storage

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"zhtp-core/internal/zhtperrors"
)

// sovereignTLDs are the only top-level domains the gateway resolves
// (spec §4.5 "DNS/gateway resolution", §6.3 "Accept only .zhtp and
// .sov"). Every other TLD is "not handled" and left to the caller.
var sovereignTLDs = []string{".zhtp", ".sov"}

func isSovereignTLD(domain string) bool {
	lower := strings.ToLower(domain)
	for _, tld := range sovereignTLDs {
		if strings.HasSuffix(lower, tld) {
			return true
		}
	}
	return false
}

// DefaultGatewayCapabilities is the default capability set a gateway
// will serve (spec §4.5: "default {HttpServe, SpaServe}").
var DefaultGatewayCapabilities = map[Capability]bool{
	HttpServe: true,
	SpaServe:  true,
}

// ResolveAnswer builds the dns.RR answer for a sovereign-TLD lookup, or
// a CoreError classifying why the query can't be answered. qtype must
// be dns.TypeA; any other question type yields a KindProtocol "NOTIMP"
// error, and a non-sovereign TLD yields a KindProtocol "not handled"
// error so the caller can fall through to another resolver (spec §4.5,
// §6.3). The caller supplies the gateway's serving IP and the
// configured default TTL; the answer TTL is
// min(config_ttl, expires_at - now). DomainRecord carries no TTL of its
// own, so no per-record TTL enters the minimum.
func ResolveAnswer(registry *DomainRegistry, domain string, qtype uint16, gatewayIP string, configTTL time.Duration, allowed map[Capability]bool) (dns.RR, error) {
	if !isSovereignTLD(domain) {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "tld not handled")
	}
	if qtype != dns.TypeA {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "NOTIMP: only A queries are supported for sovereign TLDs")
	}

	rec, _, err := registry.Resolve(domain, nil)
	if err != nil {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "NXDOMAIN: "+err.Error())
	}
	if !allowed[rec.Capability] {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "NOTIMP: capability not served by this gateway")
	}

	ttl := configTTL
	if rec.ExpiresAt != nil {
		remaining := time.Until(*rec.ExpiresAt)
		if remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < 0 {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "NXDOMAIN: record expired")
	}

	hdr := dns.RR_Header{
		Name:   dns.Fqdn(domain),
		Rrtype: dns.TypeA,
		Class:  dns.ClassINET,
		Ttl:    uint32(ttl.Seconds()),
	}
	return &dns.A{Hdr: hdr, A: parseIPOrZero(gatewayIP)}, nil
}

func parseIPOrZero(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return net.IPv4zero
	}
	return ip.To4()
}
