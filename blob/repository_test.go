package blob_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/blob"
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/concurrency"
	"github.com/heremaps/olp-sdk-go/config"
	"github.com/heremaps/olp-sdk-go/hrn"
	"github.com/heremaps/olp-sdk-go/internal/testutil"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/transport"
)

const testCatalog = "hrn:here:data::olp-here-test:hereos-internal-test-v2"

var blobAPIs = []testutil.APIEntry{{API: "blob", Version: "1"}, {API: "volatile-blob", Version: "1"}}

func newFakeServer(t *testing.T, resource http.HandlerFunc) *httptest.Server {
	return testutil.NewAPILookupServer(t, blobAPIs, resource)
}

func newRepo(t *testing.T, lookupOverride string) (*blob.Repository, *cache.Facade, *concurrency.NamedMutexRegistry) {
	t.Helper()
	tr, err := transport.NewClient(config.NetworkSettings{RequestTimeout: 5 * time.Second}, config.ProxySettings{}, config.RetrySettings{MaxAttempts: 1}, nil, nil)
	require.NoError(t, err)
	f := cache.NewFacade(cache.NewMemoryKeyValueCache(1000, time.Hour, nil), time.Hour, true)
	lookup := apilookup.NewClient(tr, f, nil)
	lookup.LookupEndpointOverride = lookupOverride
	mutexes := concurrency.NewNamedMutexRegistry()
	repo := blob.NewRepository(tr, f, lookup, mutexes, hrn.MustParse(testCatalog), "my-layer", nil)
	return repo, f, mutexes
}

func TestGetData_EmptyDataHandleIsPreconditionFailed(t *testing.T) {
	repo, _, _ := newRepo(t, "")
	_, err := repo.GetData(cancel.New(), blob.ServiceBlob, "", nil, apilookup.OnlineIfNotFound, "", nil)
	require.Error(t, err)
	assert.Equal(t, olperrors.PreconditionFailed, olperrors.TypeOf(err))
}

func TestGetData_CacheOnlyMissIsNotFound(t *testing.T) {
	repo, _, _ := newRepo(t, "")
	_, err := repo.GetData(cancel.New(), blob.ServiceBlob, "missing-handle", nil, apilookup.CacheOnly, "", nil)
	require.Error(t, err)
	assert.Equal(t, olperrors.NotFound, olperrors.TypeOf(err))
}

func TestGetData_CachedHitServesWithoutNetwork(t *testing.T) {
	repo, f, _ := newRepo(t, "")
	require.NoError(t, f.Data().Put(testCatalog, "my-layer", "handle-1", []byte("cached-bytes"), time.Hour))

	data, err := repo.GetData(cancel.New(), blob.ServiceBlob, "handle-1", nil, apilookup.CacheOnly, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "cached-bytes", string(data))
}

func TestGetData_OnlineFetchPopulatesCache(t *testing.T) {
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/layers/my-layer/data/handle-2", r.URL.Path)
		w.Write([]byte("fresh-bytes"))
	})
	defer server.Close()

	repo, f, _ := newRepo(t, server.URL)
	data, err := repo.GetData(cancel.New(), blob.ServiceBlob, "handle-2", nil, apilookup.OnlineIfNotFound, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh-bytes", string(data))

	cached, ok, err := f.Data().Get(testCatalog, "my-layer", "handle-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh-bytes", string(cached))
}

func TestGetData_OnlineOnlySkipsCacheWrite(t *testing.T) {
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh-bytes"))
	})
	defer server.Close()

	repo, f, _ := newRepo(t, server.URL)
	_, err := repo.GetData(cancel.New(), blob.ServiceBlob, "handle-3", nil, apilookup.OnlineOnly, "", nil)
	require.NoError(t, err)

	_, ok, err := f.Data().Get(testCatalog, "my-layer", "handle-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetData_RangedFetchSkipsCacheWrite(t *testing.T) {
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=5-", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("tail"))
	})
	defer server.Close()

	offset := int64(5)
	repo, f, _ := newRepo(t, server.URL)
	data, err := repo.GetData(cancel.New(), blob.ServiceBlob, "handle-4", nil, apilookup.OnlineIfNotFound, "", &offset)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, ok, err := f.Data().Get(testCatalog, "my-layer", "handle-4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetData_BillingTagForwardedAsQueryParam(t *testing.T) {
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abcd1234", r.URL.Query().Get("billingTag"))
		w.Write([]byte("ok"))
	})
	defer server.Close()

	repo, _, _ := newRepo(t, server.URL)
	_, err := repo.GetData(cancel.New(), blob.ServiceBlob, "handle-5", nil, apilookup.OnlineIfNotFound, "abcd1234", nil)
	require.NoError(t, err)
}

// TestGetData_ForbiddenEvictsCacheAndLeavesNoStickyErrorAfterRelease
// exercises spec §8 scenario 5: a 403 on a cached data handle evicts the
// cache entry, and once the failing holder has released the named mutex no
// sticky error remains for the handle.
func TestGetData_ForbiddenEvictsCacheAndLeavesNoStickyErrorAfterRelease(t *testing.T) {
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer server.Close()

	repo, f, mutexes := newRepo(t, server.URL)
	require.NoError(t, f.Data().Put(testCatalog, "my-layer", "revoked-handle", []byte("stale-bytes"), time.Hour))

	// The in-memory cache entry is present, but CacheWithUpdate skips the
	// read so the fetch reaches the network and observes the 403.
	_, err := repo.GetData(cancel.New(), blob.ServiceBlob, "revoked-handle", nil, apilookup.CacheWithUpdate, "", nil)
	require.Error(t, err)
	assert.Equal(t, olperrors.AccessDenied, olperrors.TypeOf(err))

	_, ok, err := f.Data().Get(testCatalog, "my-layer", "revoked-handle")
	require.NoError(t, err)
	assert.False(t, ok, "403 must evict the cached blob")

	key := testCatalog + "::my-layer::revoked-handle"
	snap := mutexes.GetErrorSnapshot(key)
	assert.Nil(t, snap, "sticky error is cleared once the failing holder has released")
}

// TestGetData_ConcurrentCallersCoalesceOntoOneFetch exercises component C's
// coalescing guarantee for the blob path: N concurrent callers for the same
// data handle should observe exactly one upstream GET.
func TestGetData_ConcurrentCallersCoalesceOntoOneFetch(t *testing.T) {
	var hits int64
	release := make(chan struct{})
	server := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		<-release
		w.Write([]byte("shared-bytes"))
	})
	defer server.Close()

	repo, _, _ := newRepo(t, server.URL)

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := repo.GetData(cancel.New(), blob.ServiceBlob, "shared-handle", nil, apilookup.OnlineIfNotFound, "", nil)
			results[i] = string(data)
			errs[i] = err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-bytes", results[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits), "concurrent fetches of the same handle must coalesce onto one upstream request")
}
