package rdapclient

import "net/netip"

// TargetKind discriminates the query target union (§3.1).
type TargetKind int

const (
	TargetDomain TargetKind = iota
	TargetIPv4
	TargetIPv6
	TargetASN
)

func (k TargetKind) String() string {
	switch k {
	case TargetDomain:
		return "domain"
	case TargetIPv4:
		return "ipv4"
	case TargetIPv6:
		return "ipv6"
	case TargetASN:
		return "asn"
	default:
		return "unknown"
	}
}

// Target is the discriminated query input of §3.1. Construct one with
// NewDomainTarget / NewIPTarget / NewASNTarget rather than by hand so the
// canonical form is always populated.
type Target struct {
	Kind      TargetKind
	Domain    string // canonical lowercase, no trailing dot
	IP        netip.Addr
	ASN       uint32
	canonical string
}

// Canonical returns the canonical textual value used to build the cache key (§3.2).
func (t Target) Canonical() string { return t.canonical }

// NewDomainTarget validates and wraps a domain target.
func NewDomainTarget(s string) (Target, error) {
	canon, err := ValidateDomain(s)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: TargetDomain, Domain: canon, canonical: canon}, nil
}

// NewIPTarget validates and wraps an IPv4 or IPv6 target, detecting the family
// from the parsed address.
func NewIPTarget(s string) (Target, error) {
	if addr, err := ValidateIPv4(s); err == nil {
		return Target{Kind: TargetIPv4, IP: addr, canonical: addr.String()}, nil
	}
	if addr, err := ValidateIPv6(s); err == nil {
		return Target{Kind: TargetIPv6, IP: addr, canonical: addr.String()}, nil
	}
	return Target{}, &ValidationError{Kind: "ip", Input: s, Reason: "not a valid IPv4 or IPv6 address"}
}

// NewASNTarget validates and wraps an ASN target.
func NewASNTarget(s string) (Target, error) {
	n, err := ValidateASN(s)
	if err != nil {
		return Target{}, err
	}
	canon, _ := NormalizeASN(s)
	return Target{Kind: TargetASN, ASN: n, canonical: canon}, nil
}

// cacheKey builds the §3.2 cache key: "{query_type}:{canonical_value}", lowercased.
func (t Target) cacheKey() string {
	return lower(t.Kind.String() + ":" + t.canonical)
}

// rdapPathSegment returns the RDAP path segment and value for base-URL joining (§4.4).
func (t Target) rdapPathSegment() (segment, value string) {
	switch t.Kind {
	case TargetDomain:
		return "domain", t.Domain
	case TargetIPv4, TargetIPv6:
		return "ip", t.IP.String()
	case TargetASN:
		return "autnum", trimASNPrefix(t.canonical)
	default:
		return "", ""
	}
}

func trimASNPrefix(s string) string {
	if len(s) >= 2 && (s[0] == 'A' || s[0] == 'a') && (s[1] == 'S' || s[1] == 's') {
		return s[2:]
	}
	return s
}
