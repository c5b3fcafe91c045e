package rdapclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// doerFunc adapts a plain function to the Doer interface. Deliberately not
// *http.Client, so Fetch's pinned-transport path is skipped and these tests
// exercise only the redirect/status/body-cap logic, not the OS-level dial.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func newLoopbackGuard() *SSRFGuard {
	policy := DefaultSSRFPolicy()
	policy.AllowList = []string{"127.0.0.1"}
	return NewSSRFGuard(policy, &stubResolver{})
}

// noAutoRedirectDoer wraps a test server's client but disables its built-in
// redirect following, so Fetch's own manual hop loop is what gets exercised.
func noAutoRedirectDoer(srv *httptest.Server) doerFunc {
	client := *srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return doerFunc(client.Do)
}

func defaultFetchOpts() FetchOptions {
	return FetchOptions{TimeoutMs: 5000, MaxRedirects: 5, UserAgent: "rdap-client-test/1.0", AcceptHeader: "application/rdap+json"}
}

func TestFetch_SuccessDecodesJSONBody(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rdap+json")
		w.Write([]byte(`{"objectClassName":"domain","handle":"EX-1"}`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	body, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/example.com", defaultFetchOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["handle"] != "EX-1" {
		t.Fatalf("got %+v", body)
	}
}

func TestFetch_FollowsRedirectAndValidatesFinalHop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, srv.URL+"/final", http.StatusFound)
			return
		}
		w.Write([]byte(`{"objectClassName":"domain","handle":"FINAL"}`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	body, _, err := fetcher.Fetch(context.Background(), srv.URL+"/start", defaultFetchOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["handle"] != "FINAL" {
		t.Fatalf("got %+v", body)
	}
}

func TestFetch_RedirectToNonHTTPSIsSSRFRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://127.0.0.1:9/evil", http.StatusFound)
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/start", defaultFetchOpts())
	var sse *SSRFProtectionError
	if !errorsAs(err, &sse) {
		t.Fatalf("expected *SSRFProtectionError, got %v", err)
	}
}

func TestFetch_TooManyRedirectsIsNetworkError(t *testing.T) {
	var srv *httptest.Server
	hops := 0
	srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("%s/hop%d", srv.URL, hops), http.StatusFound)
	}))
	defer srv.Close()

	opts := defaultFetchOpts()
	opts.MaxRedirects = 2
	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/start", opts)
	var ne *NetworkError
	if !errorsAs(err, &ne) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
}

func TestFetch_404IsNonRetryableRDAPServerError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorCode":404}`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/missing.example", defaultFetchOpts())
	var rse *RDAPServerError
	if !errorsAs(err, &rse) {
		t.Fatalf("expected *RDAPServerError, got %v", err)
	}
	if rse.Retryable {
		t.Fatalf("404 must not be retryable")
	}
}

func TestFetch_500IsRetryableRDAPServerError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/example.com", defaultFetchOpts())
	var rse *RDAPServerError
	if !errorsAs(err, &rse) {
		t.Fatalf("expected *RDAPServerError, got %v", err)
	}
	if !rse.Retryable {
		t.Fatalf("5xx must be retryable")
	}
}

func TestFetch_429ParsesRetryAfterSeconds(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/example.com", defaultFetchOpts())
	var rle *RateLimitError
	if !errorsAs(err, &rle) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rle.RetryAfterS != 30 {
		t.Fatalf("got retry_after_s=%d, want 30", rle.RetryAfterS)
	}
}

func TestFetch_BodyExceedingCapIsParseError(t *testing.T) {
	big := strings.Repeat("a", defaultMaxBodyBytes+1024)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"handle":"` + big + `"}`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/example.com", defaultFetchOpts())
	var pe *ParseError
	if !errorsAs(err, &pe) {
		t.Fatalf("expected *ParseError for oversized body, got %v", err)
	}
}

func TestFetch_InvalidJSONBodyIsParseError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	fetcher := NewFetcher(noAutoRedirectDoer(srv), newLoopbackGuard())
	_, _, err := fetcher.Fetch(context.Background(), srv.URL+"/domain/example.com", defaultFetchOpts())
	var pe *ParseError
	if !errorsAs(err, &pe) {
		t.Fatalf("expected *ParseError for invalid JSON, got %v", err)
	}
}

func TestParseRetryAfterSeconds_MalformedIsZero(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "not-a-number-or-date")
	if got := parseRetryAfterSeconds(h); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestParseRetryAfterSeconds_Numeric(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", strconv.Itoa(12))
	if got := parseRetryAfterSeconds(h); got != 12 {
		t.Fatalf("got %d, want 12", got)
	}
}
