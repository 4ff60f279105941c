package apilookup_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/config"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/transport"
)

const testCatalog = "hrn:here:data::olp-here-test:hereos-internal-test-v2"

func newTestClient(t *testing.T, lookupOverride string) (*apilookup.Client, *cache.Facade) {
	t.Helper()
	tr, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, config.RetrySettings{MaxAttempts: 1}, nil, nil)
	require.NoError(t, err)

	f := cache.NewFacade(cache.NewMemoryKeyValueCache(100, time.Hour, nil), time.Hour, true)
	c := apilookup.NewClient(tr, f, nil)
	c.LookupEndpointOverride = lookupOverride
	return c, f
}

func TestLookup_CacheHitSkipsNetwork(t *testing.T) {
	c, f := newTestClient(t, "")
	require.NoError(t, f.API().Put(testCatalog, "random_service", 8, "http://random_service.com", time.Hour))

	ep, err := c.Lookup(cancel.New(), hrn.MustParse(testCatalog), "random_service", 8, apilookup.CacheOnly)
	require.NoError(t, err)
	assert.Equal(t, "http://random_service.com", ep.BaseURL)
}

func TestLookup_CacheOnlyMissIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, "")
	_, err := c.Lookup(cancel.New(), hrn.MustParse(testCatalog), "random_service", 8, apilookup.CacheOnly)
	require.Error(t, err)
	assert.Equal(t, olperrors.NotFound, olperrors.TypeOf(err))
}

func TestLookup_OnlinePopulatesCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=120")
		json.NewEncoder(w).Encode([]map[string]string{
			{"api": "blob", "version": "v1", "baseURL": "https://blob.example"},
		})
	}))
	defer server.Close()

	c, f := newTestClient(t, server.URL)

	ep, err := c.Lookup(cancel.New(), hrn.MustParse(testCatalog), "blob", 1, apilookup.OnlineIfNotFound)
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example", ep.BaseURL)

	cached, ok, err := f.API().Get(testCatalog, "blob", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://blob.example", cached)
}

func TestLookup_ServiceAbsentFromResponseIsServiceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"api": "other", "version": "v1", "baseURL": "https://other.example"},
		})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)
	_, err := c.Lookup(cancel.New(), hrn.MustParse(testCatalog), "blob", 1, apilookup.OnlineIfNotFound)
	require.Error(t, err)
	assert.Equal(t, olperrors.ServiceUnavailable, olperrors.TypeOf(err))
}

func TestLookup_CatalogEndpointOverrideShortCircuits(t *testing.T) {
	c, _ := newTestClient(t, "")
	c.CatalogEndpointOverride = "https://static.example"

	ep, err := c.Lookup(cancel.New(), hrn.MustParse(testCatalog), "blob", 1, apilookup.OnlineOnly)
	require.NoError(t, err)
	assert.Equal(t, "https://static.example/catalogs/"+testCatalog, ep.BaseURL)
}

func TestLookup_CancelledBeforeSendNeverCallsNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL)
	ctx := cancel.New()
	ctx.Cancel()

	_, err := c.Lookup(ctx, hrn.MustParse(testCatalog), "blob", 1, apilookup.OnlineOnly)
	require.Error(t, err)
	assert.Equal(t, olperrors.Cancelled, olperrors.TypeOf(err))
	assert.False(t, called, "network must not be called once ctx is cancelled")
}
