package rdapclient

import (
	"context"
	"net/netip"
	"net/url"
	"strings"
)

// SSRFPolicy configures the guard (§4.2). Zero value is not safe; use
// DefaultSSRFPolicy.
type SSRFPolicy struct {
	Scheme          string // must equal exactly; default "https"
	BlockPrivate    bool
	BlockLoopback   bool
	BlockLinkLocal  bool
	BlockMulticast  bool
	BlockReserved   bool
	AllowList       []string // hostnames or parent domains; precedence over all other checks
	DenyList        []string
}

// DefaultSSRFPolicy matches §4.2's defaults.
func DefaultSSRFPolicy() SSRFPolicy {
	return SSRFPolicy{
		Scheme:         "https",
		BlockPrivate:   true,
		BlockLoopback:  true,
		BlockLinkLocal: true,
		BlockMulticast: true,
		BlockReserved:  true,
	}
}

// SSRFGuard classifies and blocks unsafe URLs and resolved IP addresses (C2).
type SSRFGuard struct {
	policy   SSRFPolicy
	resolver HostResolver
}

// NewSSRFGuard builds a guard with the given policy and DNS resolver seam.
func NewSSRFGuard(policy SSRFPolicy, resolver HostResolver) *SSRFGuard {
	if resolver == nil {
		resolver = NewMiekgResolver()
	}
	return &SSRFGuard{policy: policy, resolver: resolver}
}

// ValidateURL runs the §4.2 checks in order and, for a hostname target,
// returns the single resolved address the fetcher must connect to (rebinding
// mitigation). For a literal-IP target it returns that same address.
func (g *SSRFGuard) ValidateURL(ctx context.Context, rawURL string) (netip.Addr, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return netip.Addr{}, &SSRFProtectionError{Reason: ReasonBadURL, URL: rawURL}
	}

	if !strings.EqualFold(u.Scheme, g.policy.Scheme) {
		return netip.Addr{}, &SSRFProtectionError{Reason: ReasonBadScheme, URL: rawURL, Host: u.Hostname()}
	}

	host := u.Hostname()

	if len(g.policy.AllowList) > 0 {
		if !hostMatchesList(host, g.policy.AllowList) {
			return netip.Addr{}, &SSRFProtectionError{Reason: ReasonNotAllowListed, URL: rawURL, Host: host}
		}
		// Allow-list takes precedence over every subsequent check (§4.2 step 3).
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr, nil
		}
		addrs, err := g.resolver.LookupHost(ctx, host)
		if err != nil || len(addrs) == 0 {
			return netip.Addr{}, &SSRFProtectionError{Reason: ReasonDNSFailure, URL: rawURL, Host: host}
		}
		return addrs[0], nil
	}

	if len(g.policy.DenyList) > 0 && hostMatchesList(host, g.policy.DenyList) {
		return netip.Addr{}, &SSRFProtectionError{Reason: ReasonDenyListed, URL: rawURL, Host: host}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blocked, reason := g.classify(addr); blocked {
			return netip.Addr{}, &SSRFProtectionError{Reason: reason, URL: rawURL, Host: host, IP: addr}
		}
		return addr, nil
	}

	addrs, err := g.resolver.LookupHost(ctx, host)
	if err != nil {
		return netip.Addr{}, &SSRFProtectionError{Reason: ReasonDNSFailure, URL: rawURL, Host: host}
	}
	for _, addr := range addrs {
		if blocked, reason := g.classify(addr); blocked {
			return netip.Addr{}, &SSRFProtectionError{Reason: reason, URL: rawURL, Host: host, IP: addr}
		}
	}
	if len(addrs) == 0 {
		return netip.Addr{}, &SSRFProtectionError{Reason: ReasonDNSFailure, URL: rawURL, Host: host}
	}
	return addrs[0], nil
}

// classify applies only the categories the policy has enabled.
func (g *SSRFGuard) classify(addr netip.Addr) (bool, SSRFReason) {
	if g.policy.BlockPrivate && IsPrivateIP(addr) {
		return true, ReasonPrivateIP
	}
	if g.policy.BlockLoopback && IsLoopbackIP(addr) {
		return true, ReasonLoopbackIP
	}
	if g.policy.BlockLinkLocal && IsLinkLocalIP(addr) {
		return true, ReasonLinkLocalIP
	}
	if g.policy.BlockMulticast && IsMulticastIP(addr) {
		return true, ReasonMulticastIP
	}
	if g.policy.BlockReserved && IsReservedIP(addr) {
		return true, ReasonReservedIP
	}
	return false, ""
}

// hostMatchesList reports whether host equals, or is a subdomain of, any
// entry in list (case-insensitive).
func hostMatchesList(host string, list []string) bool {
	h := strings.ToLower(host)
	for _, entry := range list {
		e := strings.ToLower(strings.TrimPrefix(entry, "."))
		if h == e || strings.HasSuffix(h, "."+e) {
			return true
		}
	}
	return false
}
