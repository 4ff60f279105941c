// Package blob implements component H: fetching partition data bytes
// through the named-mutex coalescing layer, a byte cache, and the blob
// service's GET endpoint, with Range-resume and 403-evicts-cache handling.
package blob

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/concurrency"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/transport"
)

// preallocateLimit is the expected-size ceiling below which the response
// buffer is preallocated (spec §4.H step 6; "10 MiB").
const preallocateLimit = 10 * 1024 * 1024

// Service names the blob endpoint flavor (spec §4.H: "blob" for versioned
// layers, "volatile-blob" for volatile layers).
type Service string

const (
	ServiceBlob         Service = "blob"
	ServiceVolatileBlob Service = "volatile-blob"
)

// Repository implements component H against a single (catalog, layer).
type Repository struct {
	transport *transport.Client
	cache     *cache.Facade
	lookup    *apilookup.Client
	mutexes   *concurrency.NamedMutexRegistry
	catalog   hrn.HRN
	layer     string
	logger    *zap.Logger
}

// NewRepository builds a Repository bound to catalog/layer, sharing the
// named-mutex registry with every other blob repository in the client
// (component C is process-wide).
func NewRepository(t *transport.Client, c *cache.Facade, lookup *apilookup.Client, mutexes *concurrency.NamedMutexRegistry, catalog hrn.HRN, layer string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{transport: t, cache: c, lookup: lookup, mutexes: mutexes, catalog: catalog, layer: layer, logger: logger}
}

// GetData fetches the bytes addressed by dataHandle (spec §4.H).
// expectedSize, if non-nil, drives response-buffer preallocation.
// rangeOffset, if non-nil, requests "Range: bytes={rangeOffset}-" and skips
// the cache write on success (SPEC_FULL §6 supplement: ranged reads are the
// caller's responsibility not to treat as a complete cached object).
func (r *Repository) GetData(ctx *cancel.Context, service Service, dataHandle string, expectedSize *int64, opt apilookup.FetchOption, billingTag string, rangeOffset *int64) ([]byte, error) {
	if dataHandle == "" {
		return nil, olperrors.NewPreconditionFailed("blob: data handle is missing")
	}

	mutexKey := r.catalog.String() + "::" + r.layer + "::" + dataHandle

	if !opt.SkipsCoalescing() {
		// Peek before queueing behind the mutex: a concurrent holder that
		// already failed this exact fetch publishes its error here, letting
		// a fresh caller fail fast instead of blocking for the full attempt
		// only to replay the same error (spec §7's "sticky error consulted
		// before the network attempt to short-circuit followers").
		if err := r.mutexes.GetErrorSnapshot(mutexKey); err != nil {
			return nil, err
		}

		handle, err := r.mutexes.Acquire(mutexKey, ctx)
		if err != nil {
			return nil, err
		}
		defer handle.Release()
		return r.getDataLocked(ctx, handle, service, dataHandle, expectedSize, opt, billingTag, rangeOffset)
	}

	return r.getDataLocked(ctx, nil, service, dataHandle, expectedSize, opt, billingTag, rangeOffset)
}

func (r *Repository) getDataLocked(ctx *cancel.Context, mutex *concurrency.Handle, service Service, dataHandle string, expectedSize *int64, opt apilookup.FetchOption, billingTag string, rangeOffset *int64) ([]byte, error) {
	if !opt.SkipsCacheRead() {
		data, ok, err := r.cache.Data().Get(r.catalog.String(), r.layer, dataHandle)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
		if opt.SkipsNetwork() {
			return nil, olperrors.NewNotFound("CacheOnly: resource not found in cache")
		}
	}

	if ctx != nil && ctx.IsCancelled() {
		return nil, olperrors.NewCancelled("blob: get_data cancelled")
	}

	endpoint, err := r.lookup.Lookup(ctx, r.catalog, string(service), 1, apilookup.OnlineIfNotFound)
	if err != nil {
		if mutex != nil {
			mutex.SetError(err)
		}
		return nil, err
	}

	req := transport.NewRequest().WithBillingTag(billingTag)
	path := endpoint.BaseURL + "/layers/" + r.layer + "/data/" + dataHandle + req.Encode()
	httpReq, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, olperrors.NewUnknown("blob: building request", err)
	}
	if rangeOffset != nil {
		httpReq.Header.Set("Range", rangeStart(*rangeOffset))
	}

	resp, err := r.transport.Do(ctx, httpReq)
	if err != nil {
		if mutex != nil {
			mutex.SetError(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		if remErr := r.cache.Data().Remove(r.catalog.String(), r.layer, dataHandle); remErr != nil {
			r.logger.Warn("blob: failed to evict revoked data handle", zap.Error(remErr))
		}
		accessErr := olperrors.Newf(olperrors.AccessDenied, "blob: access to %s revoked (403)", dataHandle)
		if mutex != nil {
			mutex.SetError(accessErr)
		}
		return nil, accessErr
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		fetchErr := olperrors.Newf(olperrors.Unknown, "blob: fetch failed (status %d)", resp.StatusCode)
		if mutex != nil {
			mutex.SetError(fetchErr)
		}
		return nil, fetchErr
	}

	buffer := make([]byte, 0, preallocatedCapacity(expectedSize))
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			buffer = append(buffer, buf[:n]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			fetchErr := olperrors.NewUnknown("blob: reading response body", readErr)
			if mutex != nil {
				mutex.SetError(fetchErr)
			}
			return nil, fetchErr
		}
	}

	if opt != apilookup.OnlineOnly && rangeOffset == nil {
		if err := r.cache.Data().Put(r.catalog.String(), r.layer, dataHandle, buffer, 0); err != nil {
			r.logger.Warn("blob: cache write failed", zap.Error(err))
		}
	}

	return buffer, nil
}

func preallocatedCapacity(expectedSize *int64) int {
	if expectedSize == nil || *expectedSize <= 0 || *expectedSize >= preallocateLimit {
		return 0
	}
	return int(*expectedSize)
}

func rangeStart(offset int64) string {
	return "bytes=" + itoa(offset) + "-"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
