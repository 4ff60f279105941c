package transport_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/auth"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/config"
	"github.com/heremaps/olp-sdk-go/transport"
)

func testRetrySettings() config.RetrySettings {
	return config.RetrySettings{TimeoutSeconds: 1, MaxAttempts: 3, BackoffBase: 1}
}

func TestClient_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(cancel.New(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, calls)
}

func TestClient_NonRetryable4xxReturnsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(cancel.New(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, calls, "a non-retryable status must not be retried")
}

func TestClient_CancelledContextAbortsBeforeFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	ctx := cancel.New()
	ctx.Cancel()

	_, err = c.Do(ctx, req)
	require.Error(t, err)
}

func TestClient_AttachesBearerTokenWhenAuthConfigured(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)
	c.SetAuth(auth.NewStaticProvider("secret-token"))

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(cancel.New(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer secret-token", gotHeader)
}

func TestClient_NoAuthorizationHeaderWithoutProvider(t *testing.T) {
	var gotHeader string
	var sawHeader bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader, sawHeader = r.Header.Get("Authorization"), r.Header.Get("Authorization") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(cancel.New(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.False(t, sawHeader, "expected no Authorization header, got %q", gotHeader)
}

func TestClient_ExhaustsRetriesOnPersistent503(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, testRetrySettings(), nil, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(cancel.New(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 3, calls, "MaxAttempts caps the retry loop")
}
