package apilookup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/transport"
)

const defaultLookupTTL = 3600 * time.Second

// Endpoint is a catalog bound to a resolved base URL, the output of
// Client.Lookup.
type Endpoint struct {
	BaseURL string
}

// apiEntry is one element of the lookup service's `[{api, version,
// baseURL, parameters}]` response (spec §6.3).
type apiEntry struct {
	API     string `json:"api"`
	Version string `json:"version"`
	BaseURL string `json:"baseURL"`
}

// Client resolves (catalog, service, version) to a base URL (component F).
type Client struct {
	transport *transport.Client
	cache     *cache.Facade
	logger    *zap.Logger

	// LookupEndpointOverride replaces the default per-partition lookup
	// endpoint table entry when non-empty (config.APILookupSettings.
	// LookupEndpointProvider — a static override, not a per-call hook).
	LookupEndpointOverride string
	// CatalogEndpointOverride, when non-empty, short-circuits the whole
	// algorithm: Lookup returns "{url}/catalogs/{hrn}" with no cache or
	// network interaction (spec §4.F step 1).
	CatalogEndpointOverride string
}

// NewClient builds a Client over the shared transport and cache facade.
func NewClient(t *transport.Client, c *cache.Facade, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transport: t, cache: c, logger: logger}
}

// Lookup resolves (service, version) for catalog per spec §4.F's
// static-override / cache / online algorithm.
func (c *Client) Lookup(ctx *cancel.Context, catalog hrn.HRN, service string, version int64, opt FetchOption) (Endpoint, error) {
	if c.CatalogEndpointOverride != "" {
		return Endpoint{BaseURL: fmt.Sprintf("%s/catalogs/%s", c.CatalogEndpointOverride, catalog.String())}, nil
	}

	if !opt.skipsCacheRead() {
		url, ok, err := c.cache.API().Get(catalog.String(), service, version)
		if err != nil {
			return Endpoint{}, err
		}
		if ok {
			return Endpoint{BaseURL: url}, nil
		}
		if opt == CacheOnly {
			return Endpoint{}, olperrors.NewNotFound("CacheOnly: resource not found in cache")
		}
	}

	if ctx != nil && ctx.IsCancelled() {
		return Endpoint{}, olperrors.NewCancelled("apilookup: lookup cancelled")
	}

	lookupBase, err := c.lookupEndpoint(catalog.Partition())
	if err != nil {
		return Endpoint{}, err
	}

	var path string
	if service == "config" {
		path = lookupBase + "/platform/apis"
	} else {
		path = lookupBase + "/resources/" + catalog.String() + "/apis"
	}

	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return Endpoint{}, olperrors.NewUnknown("apilookup: building request", err)
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return Endpoint{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Endpoint{}, olperrors.Newf(olperrors.AccessDenied, "apilookup: lookup denied (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Endpoint{}, olperrors.Newf(olperrors.Unknown, "apilookup: lookup failed (status %d)", resp.StatusCode)
	}

	var entries []apiEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return Endpoint{}, olperrors.NewUnknown("apilookup: parsing lookup response", err)
	}

	maxAge, hasMaxAge := transport.MaxAge(resp)
	writeCache := opt != OnlineOnly && opt != CacheWithUpdate
	effectiveTTL := defaultLookupTTL
	if hasMaxAge {
		effectiveTTL = maxAge
	}

	var found *Endpoint
	for _, entry := range entries {
		if writeCache {
			if err := c.cache.API().Put(catalog.String(), entry.API, parseVersion(entry.Version), entry.BaseURL, effectiveTTL); err != nil {
				c.logger.Warn("apilookup: cache write failed", zap.Error(err))
			}
		}
		if entry.API == service && parseVersion(entry.Version) == version {
			e := Endpoint{BaseURL: entry.BaseURL}
			found = &e
		}
	}

	if found == nil {
		return Endpoint{}, olperrors.Newf(olperrors.ServiceUnavailable, "apilookup: (%s, %d) not present in lookup response", service, version)
	}
	return *found, nil
}

func (c *Client) lookupEndpoint(partition hrn.Partition) (string, error) {
	if c.LookupEndpointOverride != "" {
		return c.LookupEndpointOverride, nil
	}
	return defaultLookupEndpoint(partition)
}

// parseVersion reads a lookup-response version such as "v1" (or a bare
// "1") as its number.
func parseVersion(raw string) int64 {
	if len(raw) > 0 && (raw[0] == 'v' || raw[0] == 'V') {
		raw = raw[1:]
	}
	var v int64
	_, _ = fmt.Sscanf(raw, "%d", &v)
	return v
}
