package rdapclient

import "context"

// Domain looks up fqdn via the DNS bootstrap registry and returns the
// canonical response.
func (c *Client) Domain(ctx context.Context, fqdn string) (CanonicalResponse, error) {
	t, err := NewDomainTarget(fqdn)
	if err != nil {
		return CanonicalResponse{}, err
	}
	return c.Query(ctx, t, QueryOptions{})
}
