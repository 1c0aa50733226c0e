package providers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatscan/internal/types"
)

func newTestClient(t *testing.T, breakerName string, policy RetryPolicy, sleeps *[]time.Duration) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: time.Second},
		breakerName,
		policy,
		"seatscan-test/1.0",
		WithSleepFunc(func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		}),
	)
}

func requireAppCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestDoRetriesServerErrorsUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, "retry-success", DefaultRetryPolicy(), nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDoReplaysRequestBodyOnRetry(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, "retry-body", DefaultRetryPolicy(), nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"q":"FRA"}`))

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{`{"q":"FRA"}`, `{"q":"FRA"}`}, bodies)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, "no-retry-4xx", DefaultRetryPolicy(), nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	// A plain 4xx is handed back to the caller, not retried or mapped.
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDoHonorsRetryAfterHeader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(t, "retry-after", DefaultRetryPolicy(), &sleeps)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 3*time.Second, sleeps[0])
}

func TestDoMapsExhaustedRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, "rate-limited", RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	_, err := c.Do(req)
	requireAppCode(t, err, types.ErrCodeUpstreamRateLimited)
}

func TestDoStopsRetryingWhenBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, "breaker-open", RetryPolicy{MaxRetries: 20, MinWait: time.Millisecond, MaxWait: time.Millisecond}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	_, err := c.Do(req)
	requireAppCode(t, err, types.ErrCodeProviderUnavailable)
	// The breaker trips after six consecutive failures and the open state
	// ends the retry loop without touching the upstream again.
	assert.Equal(t, int32(6), hits.Load())
}

func TestDoInjectsTraceAndUserAgentHeaders(t *testing.T) {
	var gotTrace, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-B3-TraceId")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, "headers", DefaultRetryPolicy(), nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "trace-42"))

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-42", gotTrace)
	assert.Equal(t, "seatscan-test/1.0", gotAgent)
}

func TestComputeBackoffStaysWithinBounds(t *testing.T) {
	c := newTestClient(t, "backoff", RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second}, nil)

	for attempt := 0; attempt < 10; attempt++ {
		wait := c.computeBackoff(attempt, nil)
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.LessOrEqual(t, wait, time.Second)
	}
}
