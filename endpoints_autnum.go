package rdapclient

import "context"

// Autnum looks up an ASN (bare digits or "AS"-prefixed) via the asn
// bootstrap registry and returns the canonical response.
func (c *Client) Autnum(ctx context.Context, asn string) (CanonicalResponse, error) {
	t, err := NewASNTarget(asn)
	if err != nil {
		return CanonicalResponse{}, err
	}
	return c.Query(ctx, t, QueryOptions{})
}
