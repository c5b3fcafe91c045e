package rdapclient

import "context"

// NameserverLookup queries a nameserver host, resolving its registry base
// via the DNS bootstrap registry for the host's own TLD (nameservers are
// registered within a domain's registry, not a separate bootstrap file).
func (c *Client) NameserverLookup(ctx context.Context, host string, opts QueryOptions) (CanonicalResponse, error) {
	base, err := c.bootstrap.ResolveDomain(ctx, host)
	if err != nil || base == "" {
		base = "https://rdap.org"
	}
	return c.QueryDirect(ctx, "nameserver", base, "nameserver", lower(host), opts)
}
