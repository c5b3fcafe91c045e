package rdapclient

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option customizes a Client built by New, applied after cfg so callers can
// override individual knobs without hand-building a full Config.
type Option func(*Client)

// WithHTTPDoer swaps the transport the fetcher dials through (tests, proxies).
func WithHTTPDoer(d Doer) Option {
	return func(c *Client) { c.fetcher = NewFetcher(d, c.guard) }
}

// WithLogger overrides the default logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCache overrides the response CachePort implementation entirely.
func WithCache(cache CachePort) Option {
	return func(c *Client) { c.cache = cache }
}

// WithResolver overrides the DNS HostResolver used by the SSRF guard.
func WithResolver(r HostResolver) Option {
	return func(c *Client) {
		c.guard = NewSSRFGuard(c.cfg.ssrfPolicy(), r)
		c.fetcher = NewFetcher(c.fetcher.doer, c.guard)
		c.bootstrap = NewBootstrapResolver(c.fetcher, c.guard, c.cfg.Bootstrap.BaseURL, time.Duration(c.cfg.Bootstrap.RefreshS)*time.Second)
	}
}

// WithUserAgent overrides the configured User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.cfg.HTTP.UserAgent = ua }
}

// WithRequestTimeout overrides the configured per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.Timeout.RequestMs = d.Milliseconds() }
}

// WithMaxRetries overrides the configured retry attempt count.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.cfg.Retry.MaxAttempts = n }
}

// WithAllowList overrides the SSRF guard's allow-list and rebuilds the guard,
// preserving whatever resolver (e.g. a prior WithResolver) is already set.
func WithAllowList(hosts ...string) Option {
	return func(c *Client) {
		c.cfg.SSRF.AllowList = hosts
		c.guard = NewSSRFGuard(c.cfg.ssrfPolicy(), c.guard.resolver)
		c.fetcher = NewFetcher(c.fetcher.doer, c.guard)
	}
}

// WithDenyList overrides the SSRF guard's deny-list and rebuilds the guard,
// preserving whatever resolver (e.g. a prior WithResolver) is already set.
func WithDenyList(hosts ...string) Option {
	return func(c *Client) {
		c.cfg.SSRF.DenyList = hosts
		c.guard = NewSSRFGuard(c.cfg.ssrfPolicy(), c.guard.resolver)
		c.fetcher = NewFetcher(c.fetcher.doer, c.guard)
	}
}

// WithRedaction overrides the configured privacy policy.
func WithRedaction(policy RedactionPolicy) Option {
	return func(c *Client) {
		c.cfg.Privacy = PrivacyConfig{RedactPII: policy.Enabled, RedactFields: policy.Fields, Replacement: policy.Replacement}
	}
}

// WithCacheMaxSize adjusts the response cache's capacity in place, evicting
// immediately if shrinking below the current live entry count. A no-op if
// the configured cache isn't a *memCache (e.g. after WithCache).
func WithCacheMaxSize(n int) Option {
	return func(c *Client) {
		if mc, ok := c.cache.(*memCache); ok {
			mc.resize(n)
		}
	}
}

// WithBootstrapBase overrides the IANA bootstrap base URL.
func WithBootstrapBase(url string) Option {
	return func(c *Client) {
		c.cfg.Bootstrap.BaseURL = url
		c.bootstrap = NewBootstrapResolver(c.fetcher, c.guard, url, time.Duration(c.cfg.Bootstrap.RefreshS)*time.Second)
	}
}

