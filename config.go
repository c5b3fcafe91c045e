package rdapclient

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CacheConfig is the §6.4 "cache" section.
type CacheConfig struct {
	Enabled      bool   `toml:"enabled"`
	Strategy     string `toml:"strategy"` // "lru" is the only implemented strategy today
	TTLs         int64  `toml:"ttl_s"`
	MaxSize      int    `toml:"max_size"`
	NegativeTTLS int64  `toml:"negative_ttl_s"`
}

// RetryConfig is the §6.4 "retry" section.
type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	Strategy    string `toml:"strategy"`
	InitialMs   int64  `toml:"initial_ms"`
	MaxMs       int64  `toml:"max_ms"`
}

// TimeoutConfig is the §6.4 "timeout" section.
type TimeoutConfig struct {
	RequestMs   int64 `toml:"request_ms"`
	BootstrapMs int64 `toml:"bootstrap_ms"`
}

// SSRFConfig is the §6.4 "ssrf" section.
type SSRFConfig struct {
	Enabled        bool     `toml:"enabled"`
	BlockPrivate   bool     `toml:"block_private"`
	BlockLoopback  bool     `toml:"block_loopback"`
	BlockLinkLocal bool     `toml:"block_link_local"`
	AllowList      []string `toml:"allow_list"`
	DenyList       []string `toml:"deny_list"`
	Scheme         string   `toml:"scheme"`
}

// PrivacyConfig is the §6.4 "privacy" section.
type PrivacyConfig struct {
	RedactPII    bool     `toml:"redact_pii"`
	RedactFields []string `toml:"redact_fields"`
	Replacement  string   `toml:"replacement"`
}

// HTTPConfig is the §6.4 "http" section.
type HTTPConfig struct {
	UserAgent    string `toml:"user_agent"`
	MaxRedirects int    `toml:"max_redirects"`
	AcceptHeader string `toml:"accept_header"`
}

// BootstrapConfig is the §6.4 "bootstrap" section.
type BootstrapConfig struct {
	BaseURL  string `toml:"base_url"`
	RefreshS int64  `toml:"refresh_s"`
}

// Config is the single flat configuration record of §6.4.
type Config struct {
	Cache     CacheConfig     `toml:"cache"`
	Retry     RetryConfig     `toml:"retry"`
	Timeout   TimeoutConfig   `toml:"timeout"`
	SSRF      SSRFConfig      `toml:"ssrf"`
	Privacy   PrivacyConfig   `toml:"privacy"`
	HTTP      HTTPConfig      `toml:"http"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

// DefaultConfig mirrors every default value named across §4 and §6.4.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{Enabled: true, Strategy: "lru", TTLs: 3600, MaxSize: 1000, NegativeTTLS: 300},
		Retry: RetryConfig{MaxAttempts: 3, Strategy: string(BackoffExponential), InitialMs: 1000, MaxMs: 10_000},
		Timeout: TimeoutConfig{RequestMs: 10_000, BootstrapMs: 10_000},
		SSRF: SSRFConfig{
			Enabled: true, BlockPrivate: true, BlockLoopback: true, BlockLinkLocal: true,
			Scheme: "https",
		},
		Privacy: DefaultPrivacyConfig(),
		HTTP: HTTPConfig{
			UserAgent:    "rdap-client/1.0",
			MaxRedirects: 5,
			AcceptHeader: "application/rdap+json, application/json",
		},
		Bootstrap: BootstrapConfig{BaseURL: "https://data.iana.org/rdap", RefreshS: 86_400},
	}
}

// DefaultPrivacyConfig matches §4.6's redaction defaults.
func DefaultPrivacyConfig() PrivacyConfig {
	p := DefaultRedactionPolicy()
	return PrivacyConfig{RedactPII: p.Enabled, RedactFields: p.Fields, Replacement: p.Replacement}
}

// LoadConfigFile reads a TOML configuration file, overlaying it onto
// DefaultConfig so a partial file only overrides the keys it names.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "loading rdap config from %s", path)
	}
	return cfg, nil
}

func (c Config) ssrfPolicy() SSRFPolicy {
	return SSRFPolicy{
		Scheme:         c.SSRF.Scheme,
		BlockPrivate:   c.SSRF.BlockPrivate,
		BlockLoopback:  c.SSRF.BlockLoopback,
		BlockLinkLocal: c.SSRF.BlockLinkLocal,
		BlockMulticast: true,
		BlockReserved:  true,
		AllowList:      c.SSRF.AllowList,
		DenyList:       c.SSRF.DenyList,
	}
}

func (c Config) retryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Strategy:    BackoffStrategy(c.Retry.Strategy),
		InitialMs:   c.Retry.InitialMs,
		MaxMs:       c.Retry.MaxMs,
	}
}

func (c Config) redactionPolicy() RedactionPolicy {
	return RedactionPolicy{
		Enabled:     c.Privacy.RedactPII,
		Fields:      c.Privacy.RedactFields,
		Replacement: c.Privacy.Replacement,
	}
}
