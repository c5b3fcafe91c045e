package rdapclient

import (
	"context"
	"net/netip"

	"github.com/miekg/dns"
)

// HostResolver is the DNS seam referenced by the source's design notes (§9):
// a small trait abstraction, not a general-purpose resolver product. The SSRF
// guard uses it once per hostname, and the single result is reused as the
// fetcher's pinned connect address (rebinding mitigation, §4.2 step 6).
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// miekgResolver issues A and AAAA queries directly against the resolvers
// listed in /etc/resolv.conf via github.com/miekg/dns, matching the approach
// folbricht-routedns uses for its own upstream resolution rather than going
// through the stdlib's cgo/netgo resolver.
type miekgResolver struct {
	client  *dns.Client
	servers []string
}

// NewMiekgResolver builds a HostResolver from the system's resolv.conf. If it
// cannot be read, it falls back to a public recursive resolver so the guard
// still has somewhere to ask.
func NewMiekgResolver() HostResolver {
	servers := []string{"1.1.1.1:53"}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		servers = servers[:0]
		for _, s := range cfg.Servers {
			servers = append(servers, dns.JoinHostPort(s, cfg.Port))
		}
	}
	return &miekgResolver{client: &dns.Client{}, servers: servers}
}

func (r *miekgResolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	fqdn := dns.Fqdn(host)
	var out []netip.Addr
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(fqdn, qtype)
		m.RecursionDesired = true

		var lastErr error
		for _, server := range r.servers {
			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range resp.Answer {
				switch rec := rr.(type) {
				case *dns.A:
					if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
						out = append(out, a)
					}
				case *dns.AAAA:
					if a, ok := netip.AddrFromSlice(rec.AAAA.To16()); ok {
						out = append(out, a)
					}
				}
			}
			lastErr = nil
			break
		}
		if lastErr != nil && len(out) == 0 {
			// keep trying the other query type before giving up
			continue
		}
	}
	if len(out) == 0 {
		return nil, &NetworkError{Cause: errHostUnresolved(host), Retryable: true}
	}
	return out, nil
}

type errHostUnresolved string

func (e errHostUnresolved) Error() string { return "no addresses found for host " + string(e) }
