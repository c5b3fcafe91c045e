package rdapclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

func newTestBootstrapResolver() *BootstrapResolver {
	guard := NewSSRFGuard(DefaultSSRFPolicy(), &stubResolver{})
	fetcher := NewFetcher(nil, guard)
	return NewBootstrapResolver(fetcher, guard, "https://data.iana.org/rdap", time.Hour)
}

func TestBootstrapResolver_DomainMatchesByTLD(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapDNS), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"com", "net"}, Servers: []string{"https://rdap.verisign-grs.com"}},
		{Patterns: []string{"org"}, Servers: []string{"https://rdap.publicinterestregistry.org"}},
	}})

	base, err := r.ResolveDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "https://rdap.verisign-grs.com" {
		t.Fatalf("got %q", base)
	}
}

func TestBootstrapResolver_DomainNoMatchIsNoServerFound(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapDNS), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"com"}, Servers: []string{"https://rdap.verisign-grs.com"}},
	}})

	_, err := r.ResolveDomain(context.Background(), "example.zz")
	var nsf *NoServerFoundError
	if !errorsAs(err, &nsf) {
		t.Fatalf("expected *NoServerFoundError, got %v", err)
	}
}

func TestBootstrapResolver_FirstMatchingEntryAndFirstServerWin(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapDNS), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"com"}, Servers: []string{"https://first.example", "https://second.example"}},
		{Patterns: []string{"com"}, Servers: []string{"https://third.example"}},
	}})

	base, err := r.ResolveDomain(context.Background(), "a.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "https://first.example" {
		t.Fatalf("got %q, want first entry's first server", base)
	}
}

func TestBootstrapResolver_IPMatchesByCIDRContainment(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapIPv4), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"192.0.2.0/24"}, Servers: []string{"https://rir.example"}},
	}})

	base, err := r.ResolveIP(context.Background(), netip.MustParseAddr("192.0.2.55"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "https://rir.example" {
		t.Fatalf("got %q", base)
	}
}

func TestBootstrapResolver_InvalidCIDRIsInertNotWildcard(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapIPv4), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"not-a-cidr", "198.51.100.0/24"}, Servers: []string{"https://rir.example"}},
	}})

	// Address not covered by the valid pattern; the malformed pattern must
	// not act as a wildcard accept.
	_, err := r.ResolveIP(context.Background(), netip.MustParseAddr("203.0.113.1"))
	var nsf *NoServerFoundError
	if !errorsAs(err, &nsf) {
		t.Fatalf("expected *NoServerFoundError (fail-closed), got %v", err)
	}

	base, err := r.ResolveIP(context.Background(), netip.MustParseAddr("198.51.100.1"))
	if err != nil || base != "https://rir.example" {
		t.Fatalf("valid pattern in same entry should still match: base=%q err=%v", base, err)
	}
}

func TestBootstrapResolver_ASNRangeMatch(t *testing.T) {
	r := newTestBootstrapResolver()
	r.snapshot.Set(string(bootstrapASN), &bootstrapSnapshot{entries: []bootstrapEntry{
		{Patterns: []string{"1-1876", "15169"}, Servers: []string{"https://asn.example"}},
	}})

	base, err := r.ResolveASN(context.Background(), 1000)
	if err != nil || base != "https://asn.example" {
		t.Fatalf("range match failed: base=%q err=%v", base, err)
	}
	base, err = r.ResolveASN(context.Background(), 15169)
	if err != nil || base != "https://asn.example" {
		t.Fatalf("exact match failed: base=%q err=%v", base, err)
	}
	_, err = r.ResolveASN(context.Background(), 99999)
	var nsf *NoServerFoundError
	if !errorsAs(err, &nsf) {
		t.Fatalf("expected *NoServerFoundError for unmatched ASN, got %v", err)
	}
}

func TestBootstrapResolver_ConditionalRefetchHandles304WithoutLosingEntries(t *testing.T) {
	var hits int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"services":[[["com"],["https://rdap.verisign-grs.com"]]]}`))
	}))
	defer srv.Close()

	guard := newLoopbackGuard()
	fetcher := NewFetcher(noAutoRedirectDoer(srv), guard)
	r := NewBootstrapResolver(fetcher, guard, srv.URL, time.Hour)

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.snapshot.now = func() time.Time { return fixed }

	base, err := r.ResolveDomain(context.Background(), "example.com")
	if err != nil || base != "https://rdap.verisign-grs.com" {
		t.Fatalf("initial fetch failed: base=%q err=%v", base, err)
	}
	if hits != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}

	// Force the cached snapshot to expire so the next lookup revalidates
	// rather than serving straight from the fresh-entry path.
	r.snapshot.now = func() time.Time { return fixed.Add(2 * time.Hour) }

	base, err = r.ResolveDomain(context.Background(), "example.com")
	if err != nil || base != "https://rdap.verisign-grs.com" {
		t.Fatalf("revalidated lookup failed: base=%q err=%v", base, err)
	}
	if hits != 2 {
		t.Fatalf("expected exactly one conditional revalidation request, got %d total", hits)
	}
}

func TestQueryURL_Construction(t *testing.T) {
	d, _ := NewDomainTarget("example.com")
	if got := queryURL("https://rdap.example/", d); got != "https://rdap.example/domain/example.com" {
		t.Fatalf("got %q", got)
	}
	asn, _ := NewASNTarget("AS15169")
	if got := queryURL("https://rdap.example", asn); got != "https://rdap.example/autnum/15169" {
		t.Fatalf("got %q", got)
	}
	ip, _ := NewIPTarget("192.0.2.1")
	if got := queryURL("https://rdap.example", ip); got != "https://rdap.example/ip/192.0.2.1" {
		t.Fatalf("got %q", got)
	}
}
