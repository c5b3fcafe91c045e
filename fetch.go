package rdapclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// FetchOptions configures a single Fetcher.Fetch call (§4.3).
type FetchOptions struct {
	TimeoutMs    int64
	MaxRedirects int
	UserAgent    string
	AcceptHeader string

	// ConditionalHeaders, when non-empty, are attached verbatim to the
	// initial request (If-None-Match/If-Modified-Since) so a server that
	// supports conditional GET can answer 304 Not Modified instead of
	// resending the body (bootstrap registry revalidation, §4.5.1).
	ConditionalHeaders map[string]string
}

// errNotModified is returned by Fetch when the server answers a conditional
// GET with 304; only reachable when the caller set ConditionalHeaders.
type errNotModified struct{}

func (errNotModified) Error() string { return "not modified" }

// ErrNotModified is the sentinel a caller using ConditionalHeaders checks
// for with errors.Is to distinguish "nothing changed" from a real failure.
var ErrNotModified error = errNotModified{}

const defaultMaxBodyBytes = 10 << 20 // 10 MiB response size cap (§4.3, §6.2)

// Fetcher issues HTTPS GETs with SSRF validation on every hop, a single
// wall-clock timeout budget spanning redirects, and §4.3's status
// classification (C3).
type Fetcher struct {
	doer  Doer
	guard *SSRFGuard
}

// NewFetcher builds a Fetcher around the given transport and SSRF guard.
func NewFetcher(doer Doer, guard *SSRFGuard) *Fetcher {
	return &Fetcher{doer: doer, guard: guard}
}

// Fetch performs the GET, following redirects manually. Every URL reached —
// initial or post-redirect — passes the SSRF guard immediately prior to the
// connection (invariant 6, §8).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (map[string]any, http.Header, error) {
	budget := time.Duration(opts.TimeoutMs) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	current := rawURL
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	for hop := 0; ; hop++ {
		pinned, err := f.guard.ValidateURL(reqCtx, current)
		if err != nil {
			return nil, nil, err
		}

		req, reqErr := http.NewRequestWithContext(reqCtx, http.MethodGet, current, nil)
		if reqErr != nil {
			return nil, nil, &ParseError{Reason: "malformed request URL: " + reqErr.Error()}
		}
		req.Header.Set("Accept", opts.AcceptHeader)
		req.Header.Set("User-Agent", opts.UserAgent)
		for k, v := range opts.ConditionalHeaders {
			req.Header.Set(k, v)
		}

		resp, doErr := f.doRequestPinned(req, pinned)
		if doErr != nil {
			if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
				return nil, nil, &TimeoutError{BudgetMs: opts.TimeoutMs, Retryable: true, Ctx: errContext{"cause": doErr, "target": current}}
			}
			return nil, nil, &NetworkError{Cause: doErr, Retryable: isRetryableNetErr(doErr), Ctx: errContext{"target": current}}
		}

		if isRedirectStatus(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if loc == "" {
				return nil, nil, &NetworkError{Cause: errNoLocation, Retryable: false, Ctx: errContext{"target": current}}
			}
			next, joinErr := joinRedirect(current, loc)
			if joinErr != nil || !strings.EqualFold(schemeOf(next), "https") {
				return nil, nil, &SSRFProtectionError{Reason: ReasonBadScheme, URL: next, Host: hostOf(next)}
			}
			if hop+1 > maxRedirects {
				return nil, nil, &NetworkError{Cause: errTooManyRedirects, Retryable: false, Ctx: errContext{"target": rawURL}}
			}
			current = next
			continue
		}

		body, status, header, err := readCapped(resp)
		if err != nil {
			return nil, nil, err
		}

		switch {
		case status == http.StatusOK:
			var m map[string]any
			if jsonErr := json.Unmarshal(body, &m); jsonErr != nil {
				return nil, nil, &ParseError{Reason: "invalid JSON body: " + jsonErr.Error()}
			}
			return m, header, nil
		case status == http.StatusNotModified && len(opts.ConditionalHeaders) > 0:
			return nil, header, ErrNotModified
		case status == http.StatusNotFound:
			return nil, nil, &RDAPServerError{Status: status, BodyExcerpt: excerpt(body), Retryable: false, Ctx: errContext{"target": current}}
		case status == http.StatusTooManyRequests:
			return nil, nil, &RateLimitError{RetryAfterS: parseRetryAfterSeconds(header), Ctx: errContext{"target": current}}
		case status >= 400 && status < 500:
			return nil, nil, &RDAPServerError{Status: status, BodyExcerpt: excerpt(body), Retryable: false, Ctx: errContext{"target": current}}
		case status >= 500:
			return nil, nil, &RDAPServerError{Status: status, BodyExcerpt: excerpt(body), Retryable: true, Ctx: errContext{"target": current}}
		default:
			return nil, nil, &RDAPServerError{Status: status, BodyExcerpt: excerpt(body), Retryable: false, Ctx: errContext{"target": current}}
		}
	}
}

// doRequestPinned issues req, forcing the TCP connection to dial `pinned`
// while leaving the TLS ServerName/Host header as the original hostname, so
// certificate validation still runs against the name the caller asked for
// (§4.2 step 6 rebinding mitigation).
func (f *Fetcher) doRequestPinned(req *http.Request, pinned netip.Addr) (*http.Response, error) {
	if doer, ok := f.doer.(*http.Client); ok {
		transport := pinnedTransport(doer.Transport, req.URL.Hostname(), pinned)
		pinnedClient := &http.Client{
			Transport:     transport,
			CheckRedirect: refuseRedirects,
		}
		return pinnedClient.Do(req)
	}
	return f.doer.Do(req)
}

func refuseRedirects(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func pinnedTransport(base http.RoundTripper, hostname string, pinned netip.Addr) *http.Transport {
	var tlsCfg *tls.Config
	if rt, ok := base.(*http.Transport); ok && rt != nil && rt.TLSClientConfig != nil {
		tlsCfg = rt.TLSClientConfig.Clone()
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &http.Transport{
		TLSClientConfig: tlsCfg,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				port = "443"
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinned.String(), port))
		},
		ForceAttemptHTTP2: true,
	}
}

func isRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func readCapped(resp *http.Response) ([]byte, int, http.Header, error) {
	defer resp.Body.Close()
	limited := io.LimitReader(resp.Body, defaultMaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, 0, nil, &NetworkError{Cause: err, Retryable: isRetryableNetErr(err)}
	}
	if int64(len(body)) > defaultMaxBodyBytes {
		return nil, 0, nil, &ParseError{Reason: "response body exceeds size cap"}
	}
	return body, resp.StatusCode, resp.Header, nil
}

func excerpt(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// parseRetryAfterSeconds accepts a non-negative integer or an HTTP-date;
// malformed values yield 0 (§4.3).
func parseRetryAfterSeconds(h http.Header) int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d / time.Second)
		}
	}
	return 0
}

func schemeOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		return rawURL[:i]
	}
	return ""
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest = rawURL[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func joinRedirect(base, loc string) (string, error) {
	if strings.Contains(loc, "://") {
		return loc, nil
	}
	// Relative redirect: resolve against base's scheme+host.
	if !strings.HasPrefix(loc, "/") {
		return "", errRelativeRedirect
	}
	return schemeOf(base) + "://" + hostOf(base) + loc, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const (
	errNoLocation       = simpleErr("redirect response missing Location header")
	errTooManyRedirects = simpleErr("exceeded max redirects")
	errRelativeRedirect = simpleErr("unsupported relative redirect location")
)
