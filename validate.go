package rdapclient

import (
	"net/netip"
	"strconv"
	"strings"
)

// Validators (C1). Pure functions: no I/O, never panic on well-formed input,
// normalizers are idempotent. Character classification is ASCII-only; callers
// are responsible for IDN A-label conversion (§4.1).

// ValidateDomain checks a dotted label sequence per §3.1 and returns its
// canonical form (lowercase, trailing dot stripped).
func ValidateDomain(s string) (string, error) {
	trimmed := strings.TrimSuffix(s, ".")
	if trimmed == "" {
		return "", &ValidationError{Kind: "domain", Input: s, Reason: "empty"}
	}
	if len(trimmed) > 253 {
		return "", &ValidationError{Kind: "domain", Input: s, Reason: "exceeds 253 octets"}
	}
	labels := strings.Split(trimmed, ".")
	for _, lbl := range labels {
		if err := validateLabel(lbl); err != nil {
			return "", &ValidationError{Kind: "domain", Input: s, Reason: err.Error()}
		}
	}
	return strings.ToLower(trimmed), nil
}

func validateLabel(lbl string) error {
	if len(lbl) == 0 || len(lbl) > 63 {
		return labelLenErr
	}
	if lbl[0] == '-' || lbl[len(lbl)-1] == '-' {
		return labelHyphenErr
	}
	for i := 0; i < len(lbl); i++ {
		c := lbl[i]
		if !isAlphaNumHyphen(c) {
			return labelCharErr
		}
	}
	return nil
}

func isAlphaNumHyphen(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-'
}

type labelErr string

func (e labelErr) Error() string { return string(e) }

const (
	labelLenErr    labelErr = "label must be 1-63 octets"
	labelHyphenErr labelErr = "label must not start or end with a hyphen"
	labelCharErr   labelErr = "label contains invalid characters"
)

// NormalizeDomain is an idempotent alias of ValidateDomain's canonicalization.
func NormalizeDomain(s string) (string, error) { return ValidateDomain(s) }

// ValidateIPv4 checks a dotted-quad string per §3.1.
func ValidateIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}, &ValidationError{Kind: "ipv4", Input: s, Reason: "not a valid IPv4 address"}
	}
	return addr, nil
}

// NormalizeIPv4 returns the library parser's canonical textual form.
func NormalizeIPv4(s string) (string, error) {
	a, err := ValidateIPv4(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// ValidateIPv6 checks RFC 4291 textual form (including "::" compression and
// mixed IPv4 tail) per §3.1.
func ValidateIPv6(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is6() {
		return netip.Addr{}, &ValidationError{Kind: "ipv6", Input: s, Reason: "not a valid IPv6 address"}
	}
	return addr, nil
}

// NormalizeIPv6 returns the library parser's preferred representation.
func NormalizeIPv6(s string) (string, error) {
	a, err := ValidateIPv6(s)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// ValidateASN checks an unsigned integer in [0, 2^32-1] in bare or "AS"-prefixed
// form (case-insensitive) per §3.1.
func ValidateASN(s string) (uint32, error) {
	trimmed := strings.TrimSpace(s)
	digits := trimmed
	if len(trimmed) >= 2 && (trimmed[0] == 'A' || trimmed[0] == 'a') && (trimmed[1] == 'S' || trimmed[1] == 's') {
		digits = trimmed[2:]
	}
	if digits == "" {
		return 0, &ValidationError{Kind: "asn", Input: s, Reason: "empty"}
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, &ValidationError{Kind: "asn", Input: s, Reason: "not an unsigned 32-bit integer"}
	}
	return uint32(n), nil
}

// NormalizeASN returns the canonical textual form "AS<digits>".
func NormalizeASN(s string) (string, error) {
	n, err := ValidateASN(s)
	if err != nil {
		return "", err
	}
	return "AS" + strconv.FormatUint(uint64(n), 10), nil
}

// Baked-in "unsafe" IP classification tables (§4.1). No external data fetch.
var (
	privatePrefixes = mustPrefixes(
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
	)
	loopbackPrefixes = mustPrefixes("127.0.0.0/8", "::1/128")
	linkLocalPrefixes = mustPrefixes("169.254.0.0/16", "fe80::/10")
	thisNetworkPrefixes = mustPrefixes("0.0.0.0/8")
	reservedPrefixes    = mustPrefixes("240.0.0.0/4")
	uniqueLocalPrefixes = mustPrefixes("fc00::/7")
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p := netip.MustParsePrefix(c)
		out = append(out, p)
	}
	return out
}

func inAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports RFC 1918 membership.
func IsPrivateIP(addr netip.Addr) bool { return inAny(addr, privatePrefixes) }

// IsLoopbackIP reports 127/8 or ::1 membership.
func IsLoopbackIP(addr netip.Addr) bool { return addr.IsLoopback() || inAny(addr, loopbackPrefixes) }

// IsLinkLocalIP reports 169.254/16 or fe80::/10 membership.
func IsLinkLocalIP(addr netip.Addr) bool {
	return addr.IsLinkLocalUnicast() || inAny(addr, linkLocalPrefixes)
}

// IsMulticastIP reports multicast membership (either family).
func IsMulticastIP(addr netip.Addr) bool { return addr.IsMulticast() }

// IsReservedIP reports "this network" (0.0.0.0/8), IPv4 reserved (240/4), and
// IPv6 unique local (fc00::/7) membership — the remaining guarded categories
// that are neither private, loopback, link-local, nor multicast.
func IsReservedIP(addr netip.Addr) bool {
	return inAny(addr, thisNetworkPrefixes) || inAny(addr, reservedPrefixes) || inAny(addr, uniqueLocalPrefixes)
}

// IsUnsafeIP is the union classification of every guarded category (§4.1
// policy), regardless of which categories an SSRFPolicy enables. The SSRF
// guard does not call it; SSRFGuard.classify applies the same checks, each
// gated by its policy flag.
func IsUnsafeIP(addr netip.Addr) (bool, SSRFReason) {
	switch {
	case IsPrivateIP(addr):
		return true, ReasonPrivateIP
	case IsLoopbackIP(addr):
		return true, ReasonLoopbackIP
	case IsLinkLocalIP(addr):
		return true, ReasonLinkLocalIP
	case IsMulticastIP(addr):
		return true, ReasonMulticastIP
	case IsReservedIP(addr):
		return true, ReasonReservedIP
	default:
		return false, ""
	}
}
