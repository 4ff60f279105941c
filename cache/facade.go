package cache

import (
	"time"

	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// Facade bundles the four typed repositories spec §4.B describes, all
// backed by a single underlying KeyValueCache and key schema (spec §6.1).
// Errors from the underlying cache propagate as CacheIO.
type Facade struct {
	kv                     KeyValueCache
	defaultExpiration      time.Duration
	propagateAllCacheError bool
}

// NewFacade wraps kv with the typed repositories. defaultExpiration is used
// by the data repository when a caller doesn't supply an explicit TTL.
// propagateAllCacheErrors mirrors config.Settings.PropagateAllCacheErrors:
// when false, a cache I/O failure on a read is treated as a miss instead of
// an error (the online path below it still gets a chance to succeed).
func NewFacade(kv KeyValueCache, defaultExpiration time.Duration, propagateAllCacheErrors bool) *Facade {
	return &Facade{kv: kv, defaultExpiration: defaultExpiration, propagateAllCacheError: propagateAllCacheErrors}
}

func (f *Facade) wrapReadErr(err error) error {
	if err == nil {
		return nil
	}
	return olperrors.NewCacheIO("cache read failed", err)
}

func (f *Facade) wrapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	return olperrors.NewCacheIO("cache write failed", err)
}

// tolerateReadErr applies PropagateAllCacheErrors: if false, a read error
// is downgraded to a plain miss so callers fall through to the online path
// instead of failing the whole request on a cache hiccup.
func (f *Facade) tolerateReadErr(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if f.propagateAllCacheError {
		return false, f.wrapReadErr(err)
	}
	return true, nil
}

// Protect pins every key in keys against LRU eviction (spec §4.B
// "protect/release", the public surface behind the prefetch resolvers'
// GetKeysToProtect output).
func (f *Facade) Protect(keys []string) error {
	for _, key := range keys {
		if err := f.kv.Protect(key); err != nil {
			return f.wrapWriteErr(err)
		}
	}
	return nil
}

// Release unpins every key in keys.
func (f *Facade) Release(keys []string) error {
	for _, key := range keys {
		if err := f.kv.Release(key); err != nil {
			return f.wrapWriteErr(err)
		}
	}
	return nil
}

// IsProtected reports whether key is currently pinned, used by the release
// resolver to decide which sibling tiles still block releasing a quad-tree
// key (spec §4.I.2).
func (f *Facade) IsProtected(key string) bool {
	return f.kv.IsProtected(key)
}

// APICache is the lookup-URL cache: "put(service, version, url, ttl) /
// get(service, version) -> url?".
type APICache struct{ f *Facade }

func (f *Facade) API() APICache { return APICache{f: f} }

func (c APICache) Put(catalog, service string, version int64, url string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	return c.f.wrapWriteErr(c.f.kv.Set(apiKey(catalog, service, version), []byte(url), ttl))
}

func (c APICache) Get(catalog, service string, version int64) (string, bool, error) {
	value, ok, err := c.f.kv.Get(apiKey(catalog, service, version))
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return "", false, werr
	} else if miss {
		return "", false, nil
	}
	if !ok {
		return "", false, nil
	}
	return string(value), true, nil
}

// PartitionCache stores serialized partition objects under the per-version
// partition key, plus the set of partition ids present for a layer version
// under the partitions-list key. Partition (de)serialization is the
// caller's responsibility (see partition.Repository) — this repository
// only moves bytes.
type PartitionCache struct{ f *Facade }

func (f *Facade) Partition() PartitionCache { return PartitionCache{f: f} }

// PutPartition stores the serialized partition under its per-version key.
// versioned distinguishes versioned layers (version included in the key)
// from volatile layers (version section omitted, per spec §6.1).
func (c PartitionCache) PutPartition(catalog, layer, partitionID string, version int64, versioned bool, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	key := partitionKey(catalog, layer, partitionID, version, versioned)
	return c.f.wrapWriteErr(c.f.kv.Set(key, data, ttl))
}

// GetPartition returns the single serialized partition for partitionID, if
// present.
func (c PartitionCache) GetPartition(catalog, layer, partitionID string, version int64, versioned bool) ([]byte, bool, error) {
	key := partitionKey(catalog, layer, partitionID, version, versioned)
	value, ok, err := c.f.kv.Get(key)
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return nil, false, werr
	} else if miss {
		return nil, false, nil
	}
	return value, ok, nil
}

// GetMany returns the serialized partitions for every id in ids, or
// ok == false if even one of them is absent — spec §4.B: "returns None
// unless all requested partition ids are present".
func (c PartitionCache) GetMany(catalog, layer string, ids []string, version int64, versioned bool) (map[string][]byte, bool, error) {
	result := make(map[string][]byte, len(ids))
	for _, id := range ids {
		value, ok, err := c.GetPartition(catalog, layer, id, version, versioned)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		result[id] = value
	}
	return result, true, nil
}

// PutPartitionSet records which partition ids are present for (catalog,
// layer, version), serialized by the caller (partition.Repository encodes
// the id list with encoding/json).
func (c PartitionCache) PutPartitionSet(catalog, layer string, version int64, encodedIDs []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	return c.f.wrapWriteErr(c.f.kv.Set(partitionsListKey(catalog, layer, version), encodedIDs, ttl))
}

func (c PartitionCache) GetPartitionSet(catalog, layer string, version int64) ([]byte, bool, error) {
	value, ok, err := c.f.kv.Get(partitionsListKey(catalog, layer, version))
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return nil, false, werr
	} else if miss {
		return nil, false, nil
	}
	return value, ok, nil
}

// RemovePartition evicts a single partition's cache entry — grounds
// partition.Repository.RemoveFromCache (SPEC_FULL §5, restoring
// original_source's PartitionsCacheRepository::ClearPartitionMetadata).
func (c PartitionCache) RemovePartition(catalog, layer, partitionID string, version int64, versioned bool) error {
	key := partitionKey(catalog, layer, partitionID, version, versioned)
	return c.f.wrapWriteErr(c.f.kv.Delete(key))
}

// QuadTreeCache stores the raw byte form of a quad-tree index under
// (catalog, layer, root tile, version, depth). Reads return the raw bytes;
// reconstructing the index is quadtree.Index's job, not this cache's.
type QuadTreeCache struct{ f *Facade }

func (f *Facade) QuadTree() QuadTreeCache { return QuadTreeCache{f: f} }

func (c QuadTreeCache) Put(catalog, layer, rootTileHere string, version int64, depth int, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	key := quadTreeKey(catalog, layer, rootTileHere, version, depth)
	return c.f.wrapWriteErr(c.f.kv.Set(key, data, ttl))
}

func (c QuadTreeCache) Get(catalog, layer, rootTileHere string, version int64, depth int) ([]byte, bool, error) {
	key := quadTreeKey(catalog, layer, rootTileHere, version, depth)
	value, ok, err := c.f.kv.Get(key)
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return nil, false, werr
	} else if miss {
		return nil, false, nil
	}
	return value, ok, nil
}

// Key exposes the quad-tree cache key schema so the prefetch resolvers
// (component I) can build protect/release key lists without duplicating
// the key-builder (spec §4.I.1/§4.I.2).
func (c QuadTreeCache) Key(catalog, layer, rootTileHere string, version int64, depth int) string {
	return quadTreeKey(catalog, layer, rootTileHere, version, depth)
}

// DataCache stores blob bytes under (catalog, layer, data handle) with a
// configurable default expiry.
type DataCache struct{ f *Facade }

func (f *Facade) Data() DataCache { return DataCache{f: f} }

func (c DataCache) Put(catalog, layer, dataHandle string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	return c.f.wrapWriteErr(c.f.kv.Set(dataHandleKey(catalog, layer, dataHandle), data, ttl))
}

func (c DataCache) Get(catalog, layer, dataHandle string) ([]byte, bool, error) {
	value, ok, err := c.f.kv.Get(dataHandleKey(catalog, layer, dataHandle))
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return nil, false, werr
	} else if miss {
		return nil, false, nil
	}
	return value, ok, nil
}

// Remove evicts a blob — used when a 403 response invalidates a
// previously cached data handle (spec §8 scenario 5).
func (c DataCache) Remove(catalog, layer, dataHandle string) error {
	return c.f.wrapWriteErr(c.f.kv.Delete(dataHandleKey(catalog, layer, dataHandle)))
}

// Contains reports whether dataHandle is currently cached, without
// returning its bytes.
func (c DataCache) Contains(catalog, layer, dataHandle string) bool {
	_, ok, err := c.f.kv.Get(dataHandleKey(catalog, layer, dataHandle))
	return err == nil && ok
}

// Key exposes the data-handle cache key schema to the prefetch resolvers
// (component I), mirroring QuadTreeCache.Key.
func (c DataCache) Key(catalog, layer, dataHandle string) string {
	return dataHandleKey(catalog, layer, dataHandle)
}

// LayerVersionsCache stores the serialized {catalog_version,
// layer_versions} record used by partition.Repository.GetLayerVersions
// (SPEC_FULL §5, restoring original_source's GetLayerVersions/
// PutLayerVersions pair).
type LayerVersionsCache struct{ f *Facade }

func (f *Facade) LayerVersions() LayerVersionsCache { return LayerVersionsCache{f: f} }

func (c LayerVersionsCache) Put(catalog string, catalogVersion int64, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.f.defaultExpiration
	}
	return c.f.wrapWriteErr(c.f.kv.Set(layerVersionsKey(catalog, catalogVersion), data, ttl))
}

func (c LayerVersionsCache) Get(catalog string, catalogVersion int64) ([]byte, bool, error) {
	value, ok, err := c.f.kv.Get(layerVersionsKey(catalog, catalogVersion))
	if miss, werr := c.f.tolerateReadErr(err); werr != nil {
		return nil, false, werr
	} else if miss {
		return nil, false, nil
	}
	return value, ok, nil
}
