package rdapclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := DefaultConfig()
	c := New(cfg)
	c.logger.SetOutput(testLogWriter{t})
	return c
}

type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestQuery_CacheHitSkipsNetworkAndSetsServedFromCache(t *testing.T) {
	c := newTestClient(t)

	target, err := NewDomainTarget("example.com")
	require.NoError(t, err)

	stored := CanonicalResponse{
		ObjectClass: ObjectClassDomain,
		Handle:      "EX-1",
		Status:      []string{"active"},
	}
	c.cache.Set(target.cacheKey(), stored, time.Duration(c.cfg.Cache.TTLs)*time.Second)

	got, err := c.Query(context.Background(), target, QueryOptions{})
	require.NoError(t, err)
	assert.True(t, got.ServedFromCache, "expected served_from_cache=true on a cache hit")
	assert.Equal(t, "EX-1", got.Handle)
}

func TestFetchCoalescer_ConcurrentCallsShareOneExecution(t *testing.T) {
	fc := newFetchCoalescer()
	var calls int64

	var wg sync.WaitGroup
	results := make([]CanonicalResponse, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := fc.do("same-key", func() (CanonicalResponse, error) {
				atomic.AddInt64(&calls, 1)
				return CanonicalResponse{Handle: "shared"}, nil
			})
			require.NoError(t, err)
			results[i] = resp
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls, "expected exactly one underlying execution")
	for _, r := range results {
		assert.Equal(t, "shared", r.Handle)
	}
}

func TestFetchCoalescer_SequentialCallsEachRun(t *testing.T) {
	fc := newFetchCoalescer()
	var calls int64
	for i := 0; i < 3; i++ {
		_, err := fc.do("k", func() (CanonicalResponse, error) {
			atomic.AddInt64(&calls, 1)
			return CanonicalResponse{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), calls)
}

func TestNoteNegative_RecordsOnlyNonRetryable404(t *testing.T) {
	c := newTestClient(t)

	c.noteNegative("domain:missing.example", &RDAPServerError{Status: 404, Retryable: false})
	assert.True(t, c.cache.NegativeHas("domain:missing.example"))

	c.noteNegative("domain:other.example", &RDAPServerError{Status: 500, Retryable: true})
	assert.False(t, c.cache.NegativeHas("domain:other.example"))
}

func TestQuery_NegativeCacheShortCircuitsRepeatLookup(t *testing.T) {
	c := newTestClient(t)
	target, err := NewDomainTarget("missing.example")
	require.NoError(t, err)

	c.cache.NegativeSet(target.cacheKey(), time.Hour)

	_, err = c.Query(context.Background(), target, QueryOptions{})
	require.Error(t, err)
	var rse *RDAPServerError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, 404, rse.Status)
}

func TestApplyRedaction_StripsRawUnlessIncluded(t *testing.T) {
	c := newTestClient(t)
	resp := CanonicalResponse{Raw: map[string]any{"objectClassName": "domain"}}

	stripped := c.applyRedaction(resp, QueryOptions{IncludeRaw: false})
	assert.Nil(t, stripped.Raw)

	kept := c.applyRedaction(resp, QueryOptions{IncludeRaw: true})
	assert.NotNil(t, kept.Raw)
}

func TestApplyRedaction_OptionOverridesConfiguredPolicy(t *testing.T) {
	c := newTestClient(t)
	resp := CanonicalResponse{Entities: []CanonicalEntity{sampleEntityWithContact()}}

	disabled := false
	out := c.applyRedaction(resp, QueryOptions{RedactPII: &disabled, IncludeRaw: true})
	assert.Equal(t, "jane@example.com", out.Entities[0].VCard[1].Value)
}
