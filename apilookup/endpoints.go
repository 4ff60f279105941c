// Package apilookup implements component F: resolving (catalog, service,
// version) to a base URL via a static-override fast path, an expiring
// cache, and an online fallback that populates the cache.
package apilookup

import (
	"regexp"

	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// FetchOption governs how a lookup (and, by the same enum shared across
// components F/G/H, a partition or blob fetch) interacts with the cache
// and network.
type FetchOption int

const (
	// CacheOnly never issues network requests; a miss is NotFound.
	CacheOnly FetchOption = iota
	// CacheWithUpdate skips the cache read but still issues the online
	// fetch. Client.Lookup does not write the lookup result to the API
	// cache under this option.
	CacheWithUpdate
	// OnlineIfNotFound reads the cache first, falling back online on miss.
	OnlineIfNotFound
	// OnlineOnly skips the cache entirely, reading and writing nothing.
	OnlineOnly
)

func (o FetchOption) String() string {
	switch o {
	case CacheOnly:
		return "CacheOnly"
	case CacheWithUpdate:
		return "CacheWithUpdate"
	case OnlineIfNotFound:
		return "OnlineIfNotFound"
	case OnlineOnly:
		return "OnlineOnly"
	default:
		return "Unknown"
	}
}

// skipsCacheRead reports whether o bypasses the cache-read phase (spec
// §4.F step 2 / §4.H step 3): true for OnlineOnly and CacheWithUpdate.
func (o FetchOption) skipsCacheRead() bool {
	return o == OnlineOnly || o == CacheWithUpdate
}

// SkipsCacheRead is the exported form of skipsCacheRead, shared by the
// partition and blob repositories' own cache/network branching (spec
// §4.G.1, §4.H step 3).
func (o FetchOption) SkipsCacheRead() bool {
	return o.skipsCacheRead()
}

// SkipsNetwork reports whether o must never contact the network: true
// only for CacheOnly.
func (o FetchOption) SkipsNetwork() bool {
	return o == CacheOnly
}

// SkipsCoalescing reports whether o bypasses named-mutex coalescing (spec
// §4.H step 2: CacheOnly and OnlineOnly accesses don't benefit from
// serializing with concurrent callers of the same data handle).
func (o FetchOption) SkipsCoalescing() bool {
	return o == CacheOnly || o == OnlineOnly
}

// lookupHostByPartition is the finite table of spec §6.2.
var lookupHostByPartition = map[hrn.Partition]string{
	hrn.PartitionHere:      "api-lookup.data.api.platform.here.com",
	hrn.PartitionHereDev:   "api-lookup.data.api.sit.here.com",
	hrn.PartitionHereCN:    "api-lookup.data.api.hereolp.cn",
	hrn.PartitionHereCNDev: "api-lookup.data.api.in.hereolp.cn",
}

const lookupBasePath = "/lookup/v1"

// defaultLookupEndpoint returns the default lookup service base URL for
// partition, or an error if the partition isn't one of the finite table
// entries.
func defaultLookupEndpoint(partition hrn.Partition) (string, error) {
	host, ok := lookupHostByPartition[partition]
	if !ok {
		return "", olperrors.Newf(olperrors.InvalidArgument, "apilookup: unknown HRN partition %q", partition)
	}
	return "https://" + host + lookupBasePath, nil
}

// billingTagPattern enforces the glossary's "4-16 alphanumeric ASCII"
// definition (SPEC_FULL §5 "Billing tag validation" supplement).
var billingTagPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,16}$`)

// BillingTag is a validated billing-tag query parameter value.
type BillingTag string

// ParseBillingTag validates raw against the glossary's billing-tag shape.
func ParseBillingTag(raw string) (BillingTag, error) {
	if raw == "" {
		return "", nil
	}
	if !billingTagPattern.MatchString(raw) {
		return "", olperrors.Newf(olperrors.InvalidArgument, "apilookup: billing tag %q must be 4-16 alphanumeric characters", raw)
	}
	return BillingTag(raw), nil
}
