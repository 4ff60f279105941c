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

// volatileVersion is the internal placeholder passed to partition.Repository
// calls for a volatile layer: caller-visible requests never carry a
// version (original_source's VolatileLayerClientImpl doesn't accept one
// either), and NewRepository's versioned=false already omits it from the
// partition cache key; only the quad-tree and layer-versions endpoints
// still need a number in their URL path.
const volatileVersion = -1

// VolatileLayerClient is the public surface for a volatile layer (spec
// §4.J): reads always resolve against the catalog's current volatile
// state, with no caller-supplied version.
type VolatileLayerClient struct {
	env     *Environment
	catalog hrn.HRN
	layerID string

	partitions *partition.Repository
	blobs      *blob.Repository
}

// NewVolatileLayerClient builds a client bound to (catalog, layerID),
// sharing env's components with every other layer client built from the
// same Environment.
func NewVolatileLayerClient(catalog hrn.HRN, layerID string, env *Environment) *VolatileLayerClient {
	return &VolatileLayerClient{
		env:        env,
		catalog:    catalog,
		layerID:    layerID,
		partitions: partition.NewRepository(env.Transport, env.Cache, env.Lookup, catalog, layerID, false, env.Logger),
		blobs:      blob.NewRepository(env.Transport, env.Cache, env.Lookup, env.Mutexes, catalog, layerID, env.Logger),
	}
}

// GetData resolves req's partition and fetches its bytes (spec §4.J
// "get_data(request)").
func (c *VolatileLayerClient) GetData(ctx *cancel.Context, req DataRequest) ([]byte, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) ([]byte, error) {
		if req.PartitionID != "" && req.Tile != nil {
			return nil, olperrors.NewPreconditionFailed("layer: request carries both a partition id and a tile")
		}

		var p partition.Partition
		var err error
		switch {
		case req.Tile != nil:
			p, err = c.partitions.GetTile(taskCtx, *req.Tile, volatileVersion, req.Fetch, req.Fields)
		case req.PartitionID != "":
			p, err = c.partitions.GetPartitionByID(taskCtx, req.PartitionID, volatileVersion, req.Fetch)
		default:
			return nil, olperrors.NewPreconditionFailed("layer: request carries neither a partition id nor a tile")
		}
		if err != nil {
			return nil, err
		}

		return c.blobs.GetData(taskCtx, blob.ServiceVolatileBlob, p.DataHandle, p.DataSize, req.Fetch, req.BillingTag, nil)
	})
}

// GetPartitions resolves a batch of non-tiled partitions' metadata (spec
// §4.J "get_partitions(request)").
func (c *VolatileLayerClient) GetPartitions(ctx *cancel.Context, req PartitionsRequest) (map[string]partition.Partition, error) {
	return runTask(c.env.Tasks, ctx, func(taskCtx *cancel.Context) (map[string]partition.Partition, error) {
		return c.partitions.GetPartitions(taskCtx, req.PartitionIDs, volatileVersion, req.Fetch)
	})
}

// PrefetchTiles walks req's tiles through the quad-tree cache and protects
// every resolved tile against eviction (spec §4.J "prefetch_tiles(request)").
func (c *VolatileLayerClient) PrefetchTiles(ctx *cancel.Context, req PrefetchTilesRequest) (*PrefetchResult, error) {
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
			if _, err := c.partitions.GetTile(taskCtx, tile, volatileVersion, apilookup.OnlineIfNotFound, req.Fields); err != nil {
				result.Errors[tile] = err
				continue
			}
			result.Protected = append(result.Protected, tile)
		}

		if len(result.Protected) > 0 {
			if err := c.protectTiles(result.Protected); err != nil {
				return result, err
			}
		}
		return result, nil
	})
}

// Protect pins every cache entry backing tiles against eviction (spec
// §4.J "protect(ids)").
func (c *VolatileLayerClient) Protect(tiles []geo.TileKey) error {
	return c.protectTiles(tiles)
}

func (c *VolatileLayerClient) protectTiles(tiles []geo.TileKey) error {
	resolver := prefetch.NewProtectResolver(c.env.Cache, c.catalog, c.layerID, volatileVersion)
	return c.env.Cache.Protect(resolver.GetKeysToProtect(tiles))
}

// Release unpins the cache entries backing tiles (spec §4.J "release(ids)").
func (c *VolatileLayerClient) Release(tiles []geo.TileKey) error {
	resolver := prefetch.NewReleaseResolver(c.env.Cache, c.catalog, c.layerID, volatileVersion)
	return c.env.Cache.Release(resolver.GetKeysToRelease(tiles))
}

// RemoveFromCache evicts a single partition's cached metadata, addressed
// either by partition id or tile (spec §4.J "remove_from_cache(id_or_tile)").
func (c *VolatileLayerClient) RemoveFromCache(partitionID string, tile *geo.TileKey) error {
	if tile != nil {
		partitionID = tile.HereTile()
	}
	return c.partitions.RemoveFromCache(partitionID, volatileVersion)
}

// CancelPendingRequests cancels every task in flight on the shared task
// sink (spec §5 "cancel_pending_requests").
func (c *VolatileLayerClient) CancelPendingRequests() {
	c.env.Tasks.CancelAll()
}
