package rdapclient

import "context"

// EntityLookup queries an entity handle directly. tldHint, when non-empty,
// picks the registry base via the DNS bootstrap registry the same way a
// domain in that TLD would resolve; otherwise the query falls back to
// rdap.org, a public RDAP aggregator that re-routes entity lookups.
func (c *Client) EntityLookup(ctx context.Context, handle, tldHint string, opts QueryOptions) (CanonicalResponse, error) {
	base := "https://rdap.org"
	if tl := trimDotLower(tldHint); tl != "" {
		if b, err := c.bootstrap.ResolveDomain(ctx, tl); err == nil && b != "" {
			base = b
		}
	}
	return c.QueryDirect(ctx, "entity", base, "entity", handle, opts)
}
