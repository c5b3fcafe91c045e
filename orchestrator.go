package rdapclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// QueryOptions is the options bag of §6.1.
type QueryOptions struct {
	IncludeRaw        bool
	SkipCache         bool
	ForceRefresh      bool
	CacheTTLOverrideS int64
	RedactPII         *bool // nil means "use configured policy"
}

// fetchCoalescer ensures at-most-once concurrent network fetch per cache
// key (§4.7's "at-most-once concurrent fetch per key", §5's round-trip law).
type fetchCoalescer struct {
	mu      sync.Mutex
	inflight map[string]*coalescedCall
}

type coalescedCall struct {
	done chan struct{}
	resp CanonicalResponse
	err  error
}

func newFetchCoalescer() *fetchCoalescer {
	return &fetchCoalescer{inflight: make(map[string]*coalescedCall)}
}

// do runs fn for key unless a call for the same key is already in flight, in
// which case it waits for that call's result instead of issuing a second
// fetch.
func (f *fetchCoalescer) do(key string, fn func() (CanonicalResponse, error)) (CanonicalResponse, error) {
	f.mu.Lock()
	if call, ok := f.inflight[key]; ok {
		f.mu.Unlock()
		<-call.done
		return call.resp, call.err
	}
	call := &coalescedCall{done: make(chan struct{})}
	f.inflight[key] = call
	f.mu.Unlock()

	call.resp, call.err = fn()

	f.mu.Lock()
	delete(f.inflight, key)
	f.mu.Unlock()
	close(call.done)

	return call.resp, call.err
}

// Query runs the full C6 state machine: validate (already done by the
// caller building Target) -> cache get -> resolve -> SSRF -> fetch (with
// retry/backoff) -> normalize -> cache set (unredacted) -> redact (§4.7).
func (c *Client) Query(ctx context.Context, target Target, opts QueryOptions) (CanonicalResponse, error) {
	key := target.cacheKey()
	correlationID := uuid.NewString()
	log := c.logger.WithField("correlation_id", correlationID).WithField("target", target.Canonical())

	if !opts.SkipCache && !opts.ForceRefresh {
		if cached, ok := c.cache.Get(key); ok {
			log.Debug("response cache hit")
			cached.ServedFromCache = true
			return c.applyRedaction(cached, opts), nil
		}
		if c.cfg.Cache.Enabled && c.cache.NegativeHas(key) {
			return CanonicalResponse{}, &RDAPServerError{Status: 404, Retryable: false, Ctx: errContext{"target": target.Canonical(), "cause": "negative cache"}}
		}
	}

	resp, err := c.coalesce.do(key, func() (CanonicalResponse, error) {
		return c.resolveAndFetch(ctx, target, key, opts, log)
	})
	if err != nil {
		return CanonicalResponse{}, err
	}

	resp.ServedFromCache = false
	return c.applyRedaction(resp, opts), nil
}

func (c *Client) resolveAndFetch(ctx context.Context, target Target, key string, opts QueryOptions, log *logrus.Entry) (CanonicalResponse, error) {
	base, err := c.bootstrap.Resolve(ctx, target)
	if err != nil {
		return CanonicalResponse{}, err
	}

	url := queryURL(base, target)
	resp, err := c.fetchWithRetry(ctx, url, base, "bootstrap", log)
	if err != nil {
		c.noteNegative(key, err)
		return CanonicalResponse{}, err
	}

	ttlS := c.cfg.Cache.TTLs
	if opts.CacheTTLOverrideS > 0 {
		ttlS = opts.CacheTTLOverrideS
	}
	ttl := time.Duration(ttlS) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	if c.cfg.Cache.Enabled {
		c.cache.Set(key, resp, ttl)
	}
	return resp, nil
}

// fetchWithRetry drives the Fetching <-> Backoff loop of §4.7 and normalizes
// a successful response.
func (c *Client) fetchWithRetry(ctx context.Context, url, base, discoveredVia string, log *logrus.Entry) (CanonicalResponse, error) {
	policy := c.cfg.retryPolicy()
	var lastErr error

	for attempt := 1; attempt <= maxInt(policy.MaxAttempts, 1); attempt++ {
		body, _, err := c.fetcher.Fetch(ctx, url, FetchOptions{
			TimeoutMs:    c.cfg.Timeout.RequestMs,
			MaxRedirects: c.cfg.HTTP.MaxRedirects,
			UserAgent:    c.cfg.HTTP.UserAgent,
			AcceptHeader: c.cfg.HTTP.AcceptHeader,
		})
		if err == nil {
			canon, nErr := c.norm.Normalize(body, QueryContext{BaseURL: base, QueryURL: url, DiscoveredVia: discoveredVia})
			if nErr != nil {
				return CanonicalResponse{}, nErr
			}
			canon.FetchedFrom = base
			canon.QueryURL = url
			canon.DiscoveredVia = discoveredVia
			return canon, nil
		}

		lastErr = err
		if !retryableErr(err) || attempt == policy.MaxAttempts {
			break
		}

		retryAfterS := 0
		if rle, ok := err.(*RateLimitError); ok {
			retryAfterS = rle.RetryAfterS
		}
		delay := calculateBackoff(attempt, policy, retryAfterS)
		log.WithField("attempt", attempt).WithField("delay_ms", delay.Milliseconds()).Debug("retrying after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return CanonicalResponse{}, errors.Wrap(ctx.Err(), "query cancelled during backoff")
		case <-timer.C:
		}
	}
	return CanonicalResponse{}, lastErr
}

// QueryDirect runs the same cache/fetch/normalize/redact pipeline as Query
// but against an already-known base URL and path, for object classes the
// formal bootstrap registries don't cover (entity, nameserver — §4.4 is
// silent on them; see design notes).
func (c *Client) QueryDirect(ctx context.Context, cacheKeyPrefix, base, pathSegment, value string, opts QueryOptions) (CanonicalResponse, error) {
	key := lower(cacheKeyPrefix + ":" + value)
	correlationID := uuid.NewString()
	log := c.logger.WithField("correlation_id", correlationID).WithField("target", value)

	if !opts.SkipCache && !opts.ForceRefresh {
		if cached, ok := c.cache.Get(key); ok {
			cached.ServedFromCache = true
			return c.applyRedaction(cached, opts), nil
		}
		if c.cfg.Cache.Enabled && c.cache.NegativeHas(key) {
			return CanonicalResponse{}, &RDAPServerError{Status: 404, Retryable: false, Ctx: errContext{"target": value, "cause": "negative cache"}}
		}
	}

	resp, err := c.coalesce.do(key, func() (CanonicalResponse, error) {
		url := strings.TrimRight(base, "/") + "/" + pathSegment + "/" + value
		r, err := c.fetchWithRetry(ctx, url, base, "direct", log)
		if err != nil {
			c.noteNegative(key, err)
			return CanonicalResponse{}, err
		}
		if c.cfg.Cache.Enabled {
			ttl := time.Duration(c.cfg.Cache.TTLs) * time.Second
			if opts.CacheTTLOverrideS > 0 {
				ttl = time.Duration(opts.CacheTTLOverrideS) * time.Second
			}
			c.cache.Set(key, r, ttl)
		}
		return r, nil
	})
	if err != nil {
		return CanonicalResponse{}, err
	}
	resp.ServedFromCache = false
	return c.applyRedaction(resp, opts), nil
}

func (c *Client) applyRedaction(resp CanonicalResponse, opts QueryOptions) CanonicalResponse {
	policy := c.cfg.redactionPolicy()
	if opts.RedactPII != nil {
		policy.Enabled = *opts.RedactPII
	}
	if !opts.IncludeRaw {
		resp.Raw = nil
	}
	return Redact(resp, policy)
}

// noteNegative records a short-TTL negative-cache entry when err is a
// non-retryable RDAP 404, so a burst of repeat lookups for a nonexistent
// object stops short of the network (SUPPLEMENTED FEATURES #2).
func (c *Client) noteNegative(key string, err error) {
	if !c.cfg.Cache.Enabled {
		return
	}
	rse, ok := err.(*RDAPServerError)
	if !ok || rse.Status != 404 {
		return
	}
	ttl := time.Duration(c.cfg.Cache.NegativeTTLS) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.cache.NegativeSet(key, ttl)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
