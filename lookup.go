package rdapclient

import (
	"context"
	"regexp"
	"strings"
)

var (
	reASN    = regexp.MustCompile(`^(?i:AS)?\d+$`)
	reNSHost = regexp.MustCompile(`(?i)^(ns\d+|dns\d+)[.-]`) // cheap heuristic
)

// Lookup auto-detects the query type (domain, IPv4/IPv6, or ASN) from a raw
// string and routes it through Query. tldHint, if non-empty, is consulted
// only when s looks like a bare entity handle rather than one of the four
// target kinds §3.1 defines, since entity lookups need a registry context
// the bootstrap registries don't provide on their own.
func (c *Client) Lookup(ctx context.Context, s string, tldHint string) (CanonicalResponse, error) {
	return c.LookupWithOptions(ctx, s, tldHint, QueryOptions{})
}

// LookupWithOptions is Lookup with an explicit QueryOptions bag.
func (c *Client) LookupWithOptions(ctx context.Context, s string, tldHint string, opts QueryOptions) (CanonicalResponse, error) {
	s = strings.TrimSpace(s)

	if reASN.MatchString(s) {
		if t, err := NewASNTarget(s); err == nil {
			return c.Query(ctx, t, opts)
		}
	}

	if t, err := NewIPTarget(s); err == nil {
		return c.Query(ctx, t, opts)
	}

	ls := strings.ToLower(s)
	if reNSHost.MatchString(ls) {
		if resp, err := c.NameserverLookup(ctx, ls, opts); err == nil {
			return resp, nil
		}
		// fall through to domain lookup if the nameserver path 404s
	}

	if tldHint != "" && looksLikeEntityHandle(ls) {
		if resp, err := c.EntityLookup(ctx, s, tldHint, opts); err == nil {
			return resp, nil
		}
		// fall through to domain lookup
	}

	t, err := NewDomainTarget(ls)
	if err != nil {
		return CanonicalResponse{}, err
	}
	return c.Query(ctx, t, opts)
}

func looksLikeEntityHandle(s string) bool {
	if strings.Contains(s, "-") {
		return true
	}
	hasAlpha, hasDigit := false, false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z':
			hasAlpha = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasAlpha && hasDigit
}
