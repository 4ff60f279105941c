package layer

import (
	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/partition"
)

// DataRequest addresses a single blob by exactly one of PartitionID or
// Tile (spec §7 "PreconditionFailed — invalid request (both data handle
// and partition id; missing data handle)"). Fetch governs the cache/
// network interaction at every layer the request touches.
type DataRequest struct {
	PartitionID string
	Tile        *geo.TileKey
	Fields      []partition.Field
	BillingTag  string
	Fetch       apilookup.FetchOption
}

// PartitionsRequest resolves a batch of non-tiled partitions by id.
type PartitionsRequest struct {
	PartitionIDs []string
	Fetch        apilookup.FetchOption
}

// PrefetchTilesRequest names a tile set to warm into the cache and protect
// against eviction in one call (spec §4.J "prefetch_tiles(request)").
type PrefetchTilesRequest struct {
	Tiles      []geo.TileKey
	Fields     []partition.Field
	BillingTag string
}

// PrefetchResult reports, per requested tile, whether it was resolved and
// protected, or the error that prevented it. A partial failure (some tiles
// resolved, others not) is not itself an error.
type PrefetchResult struct {
	Protected []geo.TileKey
	Errors    map[geo.TileKey]error
}
