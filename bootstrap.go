package rdapclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bootstrapEntry is one row of an IANA bootstrap registry file (§3.3).
type bootstrapEntry struct {
	Patterns []string
	Servers  []string
}

type bootstrapSnapshot struct {
	entries []bootstrapEntry

	// etag/lastModified cache the prior response's validators so the next
	// refresh can issue a conditional GET instead of always re-downloading
	// the full registry file (§4.5.1 revalidation-within-TTL optimization).
	etag         string
	lastModified string
}

// bootstrapKind distinguishes the four registry files (§3.3, §4.4).
type bootstrapKind string

const (
	bootstrapDNS  bootstrapKind = "dns"
	bootstrapIPv4 bootstrapKind = "ipv4"
	bootstrapIPv6 bootstrapKind = "ipv6"
	bootstrapASN  bootstrapKind = "asn"
)

// BootstrapResolver maps a query target to an authoritative RDAP base URL via
// IANA's bootstrap registries, caching each registry file independently with
// stale-on-error fallback (C4, §4.4–§4.5.1).
type BootstrapResolver struct {
	fetcher  *Fetcher
	guard    *SSRFGuard
	baseURL  string
	timeout  time.Duration
	snapshot *ttlCache[*bootstrapSnapshot]

	mu       sync.Mutex
	inflight map[bootstrapKind]chan struct{}
}

// NewBootstrapResolver builds a resolver against the given IANA bootstrap
// base (default "https://data.iana.org/rdap").
func NewBootstrapResolver(fetcher *Fetcher, guard *SSRFGuard, baseURL string, refresh time.Duration) *BootstrapResolver {
	if baseURL == "" {
		baseURL = "https://data.iana.org/rdap"
	}
	if refresh <= 0 {
		refresh = 24 * time.Hour
	}
	return &BootstrapResolver{
		fetcher:  fetcher,
		guard:    guard,
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  10 * time.Second,
		snapshot: newTTLCache[*bootstrapSnapshot](refresh, 8),
		inflight: make(map[bootstrapKind]chan struct{}),
	}
}

// ResolveDomain returns the RDAP base URL for a canonicalized domain.
func (r *BootstrapResolver) ResolveDomain(ctx context.Context, domain string) (string, error) {
	tld := lastLabel(domain)
	if tld == "" {
		return "", &NoServerFoundError{Target: domain, Type: "domain"}
	}
	snap, err := r.snapshotFor(ctx, bootstrapDNS)
	if err != nil {
		return "", err
	}
	for _, e := range snap.entries {
		for _, p := range e.Patterns {
			if strings.EqualFold(p, tld) {
				if len(e.Servers) == 0 {
					return "", &NoServerFoundError{Target: domain, Type: "domain"}
				}
				return e.Servers[0], nil
			}
		}
	}
	return "", &NoServerFoundError{Target: domain, Type: "domain"}
}

// ResolveIP returns the RDAP base URL for an IPv4 or IPv6 address, matching
// by CIDR containment (fail-closed on unparsable patterns, §4.4).
func (r *BootstrapResolver) ResolveIP(ctx context.Context, addr netip.Addr) (string, error) {
	kind := bootstrapIPv4
	if addr.Is6() {
		kind = bootstrapIPv6
	}
	snap, err := r.snapshotFor(ctx, kind)
	if err != nil {
		return "", err
	}
	for _, e := range snap.entries {
		for _, p := range e.Patterns {
			prefix, ok := parseIPPattern(p, addr.Is6())
			if !ok {
				continue // fail-closed: inert pattern, not a wildcard accept
			}
			if prefix.Contains(addr) {
				if len(e.Servers) == 0 {
					return "", &NoServerFoundError{Target: addr.String(), Type: "ip"}
				}
				return e.Servers[0], nil
			}
		}
	}
	return "", &NoServerFoundError{Target: addr.String(), Type: "ip"}
}

// ResolveASN returns the RDAP base URL for a numeric ASN.
func (r *BootstrapResolver) ResolveASN(ctx context.Context, asn uint64) (string, error) {
	snap, err := r.snapshotFor(ctx, bootstrapASN)
	if err != nil {
		return "", err
	}
	for _, e := range snap.entries {
		for _, p := range e.Patterns {
			lo, hi, ok := parseASNRange(p)
			if !ok {
				continue
			}
			if asn >= lo && asn <= hi {
				if len(e.Servers) == 0 {
					return "", &NoServerFoundError{Target: strconv.FormatUint(asn, 10), Type: "asn"}
				}
				return e.Servers[0], nil
			}
		}
	}
	return "", &NoServerFoundError{Target: strconv.FormatUint(asn, 10), Type: "asn"}
}

// Resolve dispatches to the matching registry file for t.Kind (§4.4).
func (r *BootstrapResolver) Resolve(ctx context.Context, t Target) (string, error) {
	switch t.Kind {
	case TargetDomain:
		return r.ResolveDomain(ctx, t.Domain)
	case TargetIPv4, TargetIPv6:
		return r.ResolveIP(ctx, t.IP)
	case TargetASN:
		return r.ResolveASN(ctx, uint64(t.ASN))
	default:
		return "", &NoServerFoundError{Target: t.Canonical(), Type: t.Kind.String()}
	}
}

// snapshotFor returns the current snapshot for kind, fetching on a cache
// miss or expiry. Concurrent misses on the same kind coalesce into a single
// fetch (§4.4, §5.3); a refetch failure falls back to the prior snapshot if
// one exists (stale-on-error, §4.5.1).
func (r *BootstrapResolver) snapshotFor(ctx context.Context, kind bootstrapKind) (*bootstrapSnapshot, error) {
	key := string(kind)
	if snap, ok := r.snapshot.Get(key); ok {
		return snap, nil
	}

	r.mu.Lock()
	done, alreadyRunning := r.inflight[kind]
	if !alreadyRunning {
		done = make(chan struct{})
		r.inflight[kind] = done
	}
	r.mu.Unlock()

	if alreadyRunning {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, &TimeoutError{BudgetMs: 0, Retryable: true, Ctx: errContext{"target": string(kind)}}
		}
		if snap, ok := r.snapshot.Get(key); ok {
			return snap, nil
		}
		if snap, found, _ := r.snapshot.GetStale(key); found {
			return snap, nil
		}
		return nil, &NetworkError{Cause: errBootstrapUnavailable(kind), Retryable: true}
	}

	defer func() {
		r.mu.Lock()
		delete(r.inflight, kind)
		r.mu.Unlock()
		close(done)
	}()

	prev, hadPrev, _ := r.snapshot.GetStale(key)
	var prevForCond *bootstrapSnapshot
	if hadPrev {
		prevForCond = prev
	}

	snap, err := r.fetchSnapshot(ctx, kind, prevForCond)
	if errors.Is(err, ErrNotModified) {
		// Server confirmed the cached copy is still current: keep its
		// entries, just refresh the TTL so we don't revalidate again until
		// it expires (§4.5.1).
		r.snapshot.Set(key, prev)
		return prev, nil
	}
	if err != nil {
		if stale, found, _ := r.snapshot.GetStale(key); found {
			return stale, nil
		}
		return nil, err
	}
	r.snapshot.Set(key, snap)
	return snap, nil
}

// fetchSnapshot downloads kind's registry file. When prev is non-nil and
// carries a validator from an earlier fetch, the request is conditional
// (If-None-Match/If-Modified-Since); a 304 response surfaces as
// ErrNotModified rather than a fresh snapshot.
func (r *BootstrapResolver) fetchSnapshot(ctx context.Context, kind bootstrapKind, prev *bootstrapSnapshot) (*bootstrapSnapshot, error) {
	url := r.baseURL + "/" + string(kind) + ".json"
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := FetchOptions{
		TimeoutMs:    r.timeout.Milliseconds(),
		MaxRedirects: 5,
		UserAgent:    "rdap-client/1",
		AcceptHeader: "application/json",
	}
	if prev != nil && (prev.etag != "" || prev.lastModified != "") {
		opts.ConditionalHeaders = map[string]string{}
		if prev.etag != "" {
			opts.ConditionalHeaders["If-None-Match"] = prev.etag
		}
		if prev.lastModified != "" {
			opts.ConditionalHeaders["If-Modified-Since"] = prev.lastModified
		}
	}

	body, header, err := r.fetcher.Fetch(reqCtx, url, opts)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &ParseError{Reason: "bootstrap document re-encode failed: " + err.Error()}
	}
	var doc struct {
		Services [][]any `json:"services"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Reason: "bootstrap document malformed: " + err.Error()}
	}

	snap := &bootstrapSnapshot{}
	if header != nil {
		snap.etag = header.Get("ETag")
		snap.lastModified = header.Get("Last-Modified")
	}
	for _, svc := range doc.Services {
		if len(svc) != 2 {
			continue
		}
		patterns := toStringSlice(svc[0])
		servers := toStringSlice(svc[1])
		for i, s := range servers {
			servers[i] = strings.TrimRight(s, "/")
		}
		snap.entries = append(snap.entries, bootstrapEntry{Patterns: patterns, Servers: servers})
	}
	return snap, nil
}

func parseIPPattern(pattern string, is6 bool) (netip.Prefix, bool) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return netip.Prefix{}, false
	}
	if p, err := netip.ParsePrefix(pattern); err == nil {
		if p.Addr().Is6() != is6 {
			return netip.Prefix{}, false
		}
		return p, true
	}
	addr, err := netip.ParseAddr(pattern)
	if err != nil || addr.Is6() != is6 {
		return netip.Prefix{}, false
	}
	bits := 32
	if is6 {
		bits = 128
	}
	return netip.PrefixFrom(addr, bits), true
}

func parseASNRange(s string) (uint64, uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		lo, err1 := strconv.ParseUint(strings.TrimSpace(s[:i]), 10, 64)
		hi, err2 := strconv.ParseUint(strings.TrimSpace(s[i+1:]), 10, 64)
		if err1 != nil || err2 != nil || hi < lo {
			return 0, 0, false
		}
		return lo, hi, true
	}
	x, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return x, x, true
}

// queryURL builds the RDAP query URL from a resolved base and target
// (§4.4's construction rules). A single trailing slash on base is tolerated.
func queryURL(base string, t Target) string {
	segment, value := t.rdapPathSegment()
	return strings.TrimRight(base, "/") + "/" + segment + "/" + value
}

type errBootstrapUnavailable bootstrapKind

func (e errBootstrapUnavailable) Error() string {
	return "bootstrap registry " + string(e) + " unavailable"
}
