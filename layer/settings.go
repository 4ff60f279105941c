// Package layer implements component J: the public VersionedLayerClient,
// VolatileLayerClient, and StreamLayerClient surface. Each client
// orchestrates components F-I behind a single per-catalog-per-layer
// facade, submitting every request through the shared task sink (spec
// §4.J).
package layer

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/auth"
	"github.com/heremaps/olp-sdk-go/auth/gotrueauth"
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/concurrency"
	"github.com/heremaps/olp-sdk-go/config"
	"github.com/heremaps/olp-sdk-go/observability"
	"github.com/heremaps/olp-sdk-go/transport"
)

// Environment bundles the process-wide components every layer client
// shares: the cache facade, named-mutex registry, task sink, transport
// client, and API-lookup client. Building one Environment and handing it
// to several layer-client constructors is this SDK's equivalent of
// constructing a client from "a catalog, a layer id, and settings" (spec
// §4.J) — settings are resolved into concrete components exactly once.
type Environment struct {
	Transport *transport.Client
	Cache     *cache.Facade
	Lookup    *apilookup.Client
	Mutexes   *concurrency.NamedMutexRegistry
	Tasks     *concurrency.TaskSink
	Logger    *zap.Logger
	Settings  config.Settings
}

// NewEnvironment validates settings and builds the shared component set.
// rt optionally overrides the default HTTP transport (tests, or a
// platform-specific backend plugged in per spec §1's out-of-scope note);
// collector, if non-nil, wires Prometheus metrics into the task sink; the
// cache does not receive it.
func NewEnvironment(settings config.Settings, rt http.RoundTripper, logger *zap.Logger, collector *observability.Collector) (*Environment, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t, err := transport.NewClient(settings.Network, settings.Proxy, settings.Retry, rt, logger)
	if err != nil {
		return nil, err
	}

	kv := cache.NewMemoryKeyValueCache(settings.Cache.MaxItems, settings.Cache.TTL, logger)
	facade := cache.NewFacade(kv, settings.DefaultCacheExpiration, settings.PropagateAllCacheErrors)

	lookup := apilookup.NewClient(t, facade, logger)
	lookup.LookupEndpointOverride = settings.APILookup.LookupEndpointProvider
	lookup.CatalogEndpointOverride = settings.APILookup.CatalogEndpointProvider

	if provider := buildTokenProvider(settings.Authentication); provider != nil {
		t.SetAuth(provider)
	}

	return &Environment{
		Transport: t,
		Cache:     facade,
		Lookup:    lookup,
		Mutexes:   concurrency.NewNamedMutexRegistry(),
		Tasks:     concurrency.NewTaskSink(settings.TaskScheduler.Workers, logger, collector),
		Logger:    logger,
		Settings:  settings,
	}, nil
}

// buildTokenProvider resolves config.Settings.Authentication into a
// concrete auth.TokenProvider, wrapped in auth.NewCachingProvider so a
// gotrue exchange isn't repeated on every request. "none" (the zero
// value) returns nil: no Authorization header is attached.
func buildTokenProvider(settings config.AuthenticationSettings) auth.TokenProvider {
	switch settings.TokenProvider {
	case "gotrue":
		return auth.NewCachingProvider(gotrueauth.NewAdapter(settings.TokenEndpointURL, settings.ClientID, settings.ClientSecret))
	case "static":
		return auth.NewStaticProvider(settings.StaticToken)
	default:
		return nil
	}
}

// Close stops the shared task sink, draining whatever job each worker is
// currently running before returning. Queued-but-unstarted jobs are
// cancelled.
func (e *Environment) Close() {
	e.Tasks.Close()
}
