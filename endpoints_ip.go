package rdapclient

import "context"

// IP looks up an IPv4 or IPv6 address via the ipv4/ipv6 bootstrap registries
// and returns the canonical response.
func (c *Client) IP(ctx context.Context, addr string) (CanonicalResponse, error) {
	t, err := NewIPTarget(addr)
	if err != nil {
		return CanonicalResponse{}, err
	}
	return c.Query(ctx, t, QueryOptions{})
}
