package rdapclient

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Doer is the minimal http.Client interface we depend on (handy for tests/mocks).
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a concurrency-safe RDAP client: validation, SSRF guarding,
// bootstrap discovery, fetching, caching, normalization and redaction
// composed behind the single Query/Lookup surface (§2, §6.1).
type Client struct {
	cfg Config

	fetcher   *Fetcher
	guard     *SSRFGuard
	bootstrap *BootstrapResolver
	cache     CachePort
	norm      *normalizer
	logger    *logrus.Logger

	coalesce *fetchCoalescer
}

// New returns a ready Client built from cfg and overridden by opts. Pass
// DefaultConfig() for the documented defaults.
func New(cfg Config, opts ...Option) *Client {
	doer := defaultHTTPClient(time.Duration(cfg.Timeout.RequestMs) * time.Millisecond)
	resolver := NewMiekgResolver()
	guard := NewSSRFGuard(cfg.ssrfPolicy(), resolver)
	fetcher := NewFetcher(doer, guard)

	c := &Client{
		cfg:       cfg,
		fetcher:   fetcher,
		guard:     guard,
		bootstrap: NewBootstrapResolver(fetcher, guard, cfg.Bootstrap.BaseURL, time.Duration(cfg.Bootstrap.RefreshS)*time.Second),
		cache:     newMemCache(cfg.Cache.MaxSize),
		norm:      newNormalizer(),
		logger:    defaultLogger(),
		coalesce:  newFetchCoalescer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats reports response cache hit/miss/eviction counters for this
// Client's lifetime.
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout + 5*time.Second}
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}
