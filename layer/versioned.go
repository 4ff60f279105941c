package layer

import (
	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/blob"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/partition"
	"github.com/heremaps/olp-sdk-go/prefetch"
)

// VersionedLayerClient is the public surface for a versioned layer (spec
// §4.J): every read is bound to an explicit catalog version, matching
// original_source's VersionedLayerClientImpl.
type VersionedLayerClient struct {
	env     *Environment
	catalog hrn.HRN
	layerID string

	partitions *partition.Repository
	blobs      *blob.Repository
}

// NewVersionedLayerClient builds a client bound to (catalog, layerID),
// sharing env's transport, cache, mutex registry, and task sink with every
// other layer client built from the same Environment.
func NewVersionedLayerClient(catalog hrn.HRN, layerID string, env *Environment) *VersionedLayerClient {
	return &VersionedLayerClient{
		env:        env,
		catalog:    catalog,
		layerID:    layerID,
		partitions: partition.NewRepository(env.Transport, env.Cache, env.Lookup, catalog, layerID, true, env.Logger),
		blobs:      blob.NewRepository(env.Transport, env.Cache, env.Lookup, env.Mutexes, catalog, layerID, env.Logger),
	}
}

// GetData resolves req's partition (by tile or id) and fetches its bytes
// on the shared task sink (spec §4.J "get_data(request)").
func (c *VersionedLayerClient) GetData(ctx *cancel.Context, version int64, req DataRequest) ([]byte, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) ([]byte, error) {
		if req.PartitionID != "" && req.Tile != nil {
			return nil, olperrors.NewPreconditionFailed("layer: request carries both a partition id and a tile")
		}

		var p partition.Partition
		var err error
		switch {
		case req.Tile != nil:
			p, err = c.partitions.GetTile(taskCtx, *req.Tile, version, req.Fetch, req.Fields)
		case req.PartitionID != "":
			p, err = c.partitions.GetPartitionByID(taskCtx, req.PartitionID, version, req.Fetch)
		default:
			return nil, olperrors.NewPreconditionFailed("layer: request carries neither a partition id nor a tile")
		}
		if err != nil {
			return nil, err
		}

		return c.blobs.GetData(taskCtx, blob.ServiceBlob, p.DataHandle, p.DataSize, req.Fetch, req.BillingTag, nil)
	})
}

// GetPartitions resolves a batch of non-tiled partitions' metadata (spec
// §4.J "get_partitions(request)"). It does not fetch blob bytes.
func (c *VersionedLayerClient) GetPartitions(ctx *cancel.Context, version int64, req PartitionsRequest) (map[string]partition.Partition, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (map[string]partition.Partition, error) {
		return c.partitions.GetPartitions(taskCtx, req.PartitionIDs, version, req.Fetch)
	})
}

// GetLayerVersions resolves the set of per-layer versions for
// catalogVersion (SPEC_FULL §6 supplement), letting a caller discover
// "latest" before issuing version-bound requests.
func (c *VersionedLayerClient) GetLayerVersions(ctx *cancel.Context, catalogVersion int64, opt apilookup.FetchOption) (map[string]int64, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (map[string]int64, error) {
		return c.partitions.GetLayerVersions(taskCtx, catalogVersion, opt)
	})
}

// PrefetchTiles walks req's tiles through the quad-tree cache (fetching
// online on a miss), then protects every resolved tile's data-handle and
// quad-tree cache entries against eviction (spec §4.J
// "prefetch_tiles(request)", SPEC_FULL §4.I). Resolution failures for
// individual tiles are collected rather than aborting the whole batch.
func (c *VersionedLayerClient) PrefetchTiles(ctx *cancel.Context, version int64, req PrefetchTilesRequest) (*PrefetchResult, error) {
	if len(req.Tiles) == 0 {
		return nil, olperrors.NewPreconditionFailed("layer: prefetch_tiles requires at least one tile")
	}

	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (*PrefetchResult, error) {
		result := &PrefetchResult{Errors: make(map[geo.TileKey]error)}
		for _, tile := range req.Tiles {
			if taskCtx != nil && taskCtx.IsCancelled() {
				result.Errors[tile] = olperrors.NewCancelled("layer: prefetch_tiles cancelled")
				continue
			}
			if _, err := c.partitions.GetTile(taskCtx, tile, version, apilookup.OnlineIfNotFound, req.Fields); err != nil {
				result.Errors[tile] = err
				continue
			}
			result.Protected = append(result.Protected, tile)
		}

		if len(result.Protected) > 0 {
			if err := c.protectTiles(version, result.Protected); err != nil {
				return result, err
			}
		}
		return result, nil
	})
}

// Protect pins every cache entry backing tiles (data handle and quad-tree
// bytes) against eviction (spec §4.J "protect(ids)").
func (c *VersionedLayerClient) Protect(version int64, tiles []geo.TileKey) error {
	return c.protectTiles(version, tiles)
}

func (c *VersionedLayerClient) protectTiles(version int64, tiles []geo.TileKey) error {
	resolver := prefetch.NewProtectResolver(c.env.Cache, c.catalog, c.layerID, version)
	return c.env.Cache.Protect(resolver.GetKeysToProtect(tiles))
}

// Release unpins the cache entries backing tiles that Protect or
// PrefetchTiles pinned (spec §4.J "release(ids)").
func (c *VersionedLayerClient) Release(version int64, tiles []geo.TileKey) error {
	resolver := prefetch.NewReleaseResolver(c.env.Cache, c.catalog, c.layerID, version)
	return c.env.Cache.Release(resolver.GetKeysToRelease(tiles))
}

// RemoveFromCache evicts a single partition's cached metadata, addressed
// either by partition id or tile (spec §4.J "remove_from_cache(id_or_tile)").
func (c *VersionedLayerClient) RemoveFromCache(version int64, partitionID string, tile *geo.TileKey) error {
	if tile != nil {
		partitionID = tile.HereTile()
	}
	return c.partitions.RemoveFromCache(partitionID, version)
}

// CancelPendingRequests cancels every task in flight on the shared task
// sink (spec §5 "cancel_pending_requests").
func (c *VersionedLayerClient) CancelPendingRequests() {
	c.env.Tasks.CancelAll()
}
