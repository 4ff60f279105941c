package partition

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heremaps/olp-sdk-go/apilookup"
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/hrn"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
	"github.com/heremaps/olp-sdk-go/quadtree"
	"github.com/heremaps/olp-sdk-go/transport"
)

// maxQuadTreeDepth is the maximum supported quad-tree depth D (spec
// §4.G.1 step 1).
const maxQuadTreeDepth = 4

// maxPartitionIDsPerBatch bounds get_partitions' URL-length-sensitive
// batching (SPEC_FULL §12 Open Question decision: implementation-defined,
// fixed at 100).
const maxPartitionIDsPerBatch = 100

// maxConcurrentPartitionBatches bounds how many query_partitions batches
// GetPartitions runs in parallel (spec §4.G.3 "sequential or parallel
// queries" is implementation-defined).
const maxConcurrentPartitionBatches = 4

// Repository implements component G against a single (catalog, layer).
type Repository struct {
	transport *transport.Client
	cache     *cache.Facade
	lookup    *apilookup.Client
	catalog   hrn.HRN
	layer     string
	versioned bool
	logger    *zap.Logger
}

// NewRepository builds a Repository bound to catalog/layer. versioned
// selects whether partition cache keys include the requested version
// (spec §6.1: omitted for volatile layers).
func NewRepository(t *transport.Client, c *cache.Facade, lookup *apilookup.Client, catalog hrn.HRN, layer string, versioned bool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{transport: t, cache: c, lookup: lookup, catalog: catalog, layer: layer, versioned: versioned, logger: logger}
}

// GetTile resolves the partition addressing tile exactly (spec §4.G.1).
func (r *Repository) GetTile(ctx *cancel.Context, tile geo.TileKey, version int64, opt apilookup.FetchOption, required []Field) (Partition, error) {
	root := tile.ChangedLevelBy(-maxQuadTreeDepth)

	if !opt.SkipsCacheRead() {
		for k := 0; k <= maxQuadTreeDepth; k++ {
			ancestor := tile.ChangedLevelBy(-k)
			data, ok, err := r.cache.QuadTree().Get(r.catalog.String(), r.layer, ancestor.HereTile(), version, maxQuadTreeDepth)
			if err != nil {
				return Partition{}, err
			}
			if !ok {
				continue
			}
			tree, err := quadtree.Parse(data, ancestor, maxQuadTreeDepth)
			if err != nil {
				return Partition{}, err
			}
			entry, found := tree.Find(tile)
			if found && hasAllEntryFields(entry, required) {
				return entryToPartition(entry), nil
			}
			break
		}
	}

	if opt.SkipsNetwork() {
		return Partition{}, olperrors.NewNotFound("CacheOnly: tile not present in cached quad-tree")
	}
	if ctx != nil && ctx.IsCancelled() {
		return Partition{}, olperrors.NewCancelled("partition: get_tile cancelled")
	}

	tree, err := r.fetchQuadTree(ctx, root, version, required)
	if err != nil {
		return Partition{}, err
	}
	entry, found := tree.Find(tile)
	if !found {
		return Partition{}, olperrors.Newf(olperrors.NotFound, "partition: tile %s not present", tile.HereTile())
	}
	return entryToPartition(entry), nil
}

// GetAggregatedTile returns the closest ancestor of tile whose data is
// present (spec §4.G.2).
func (r *Repository) GetAggregatedTile(ctx *cancel.Context, tile geo.TileKey, version int64, opt apilookup.FetchOption) (Partition, error) {
	root := tile.ChangedLevelBy(-maxQuadTreeDepth)

	var tree *quadtree.Index
	if !opt.SkipsCacheRead() {
		for k := 0; k <= maxQuadTreeDepth; k++ {
			ancestor := tile.ChangedLevelBy(-k)
			data, ok, err := r.cache.QuadTree().Get(r.catalog.String(), r.layer, ancestor.HereTile(), version, maxQuadTreeDepth)
			if err != nil {
				return Partition{}, err
			}
			if !ok {
				continue
			}
			tree, err = quadtree.Parse(data, ancestor, maxQuadTreeDepth)
			if err != nil {
				return Partition{}, err
			}
			break
		}
	}

	if tree == nil {
		if opt.SkipsNetwork() {
			return Partition{}, olperrors.NewNotFound("CacheOnly: quad-tree not cached")
		}
		if ctx != nil && ctx.IsCancelled() {
			return Partition{}, olperrors.NewCancelled("partition: get_aggregated_tile cancelled")
		}
		var err error
		tree, err = r.fetchQuadTree(ctx, root, version, nil)
		if err != nil {
			return Partition{}, err
		}
	}

	entry, found := tree.FindAggregated(tile)
	if !found {
		return Partition{}, olperrors.Newf(olperrors.NotFound, "partition: no ancestor of %s carries data", tile.HereTile())
	}
	return entryToPartition(entry), nil
}

// fetchQuadTree issues the online quad-tree GET, caches its raw bytes
// under (root, D, version), and returns the parsed index (spec §4.G.1
// step 4).
func (r *Repository) fetchQuadTree(ctx *cancel.Context, root geo.TileKey, version int64, required []Field) (*quadtree.Index, error) {
	endpoint, err := r.lookup.Lookup(ctx, r.catalog, "query", 1, apilookup.OnlineIfNotFound)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/layers/%s/versions/%d/quadkeys/%s/depths/%d", endpoint.BaseURL, r.layer, version, root.HereTile(), maxQuadTreeDepth)
	req := transport.NewRequest()
	if len(required) > 0 {
		req.With("additionalFields", encodeFieldNames(required))
	}
	httpReq, err := http.NewRequest(http.MethodGet, path+req.Encode(), nil)
	if err != nil {
		return nil, olperrors.NewUnknown("partition: building quadtree request", err)
	}

	resp, err := r.transport.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, olperrors.Newf(olperrors.Unknown, "partition: quadtree fetch failed (status %d)", resp.StatusCode)
	}

	body := make([]byte, 0)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	tree, err := quadtree.Parse(body, root, maxQuadTreeDepth)
	if err != nil {
		return nil, err
	}

	maxAge, hasMaxAge := transport.MaxAge(resp)
	var ttl time.Duration
	if hasMaxAge {
		ttl = maxAge
	}
	if err := r.cache.QuadTree().Put(r.catalog.String(), r.layer, root.HereTile(), version, maxQuadTreeDepth, tree.Bytes(), ttl); err != nil {
		r.logger.Warn("partition: quadtree cache write failed", zap.Error(err))
	}

	return tree, nil
}

// GetPartitionByID resolves a non-tiled partition by id (spec §4.G.3).
func (r *Repository) GetPartitionByID(ctx *cancel.Context, id string, version int64, opt apilookup.FetchOption) (Partition, error) {
	if !opt.SkipsCacheRead() {
		data, ok, err := r.cache.Partition().GetPartition(r.catalog.String(), r.layer, id, version, r.versioned)
		if err != nil {
			return Partition{}, err
		}
		if ok {
			return decodePartition(data)
		}
		if opt.SkipsNetwork() {
			return Partition{}, olperrors.NewNotFound("CacheOnly: partition not cached")
		}
	}

	partitions, err := r.queryPartitions(ctx, []string{id}, version)
	if err != nil {
		return Partition{}, err
	}
	p, ok := partitions[id]
	if !ok {
		return Partition{}, olperrors.Newf(olperrors.NotFound, "partition: id %q not found", id)
	}

	if opt != apilookup.OnlineOnly {
		r.writePartitionToCache(p, version)
	}
	return p, nil
}

// GetPartitions resolves a list of partition ids, batching URL-length
// sensitive queries at maxPartitionIDsPerBatch (spec §4.G.3, SPEC_FULL §12).
func (r *Repository) GetPartitions(ctx *cancel.Context, ids []string, version int64, opt apilookup.FetchOption) (map[string]Partition, error) {
	result := make(map[string]Partition, len(ids))
	var toFetch []string

	if !opt.SkipsCacheRead() {
		cached, ok, err := r.cache.Partition().GetMany(r.catalog.String(), r.layer, ids, version, r.versioned)
		if err != nil {
			return nil, err
		}
		if ok {
			for id, data := range cached {
				p, err := decodePartition(data)
				if err != nil {
					return nil, err
				}
				result[id] = p
			}
			return result, nil
		}
		if opt.SkipsNetwork() {
			return nil, olperrors.NewNotFound("CacheOnly: not every requested partition is cached")
		}
	}
	toFetch = ids

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentPartitionBatches)

	for start := 0; start < len(toFetch); start += maxPartitionIDsPerBatch {
		start := start
		end := start + maxPartitionIDsPerBatch
		if end > len(toFetch) {
			end = len(toFetch)
		}

		g.Go(func() error {
			batch, err := r.queryPartitions(ctx, toFetch[start:end], version)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for id, p := range batch {
				result[id] = p
				if opt != apilookup.OnlineOnly {
					r.writePartitionToCache(p, version)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) writePartitionToCache(p Partition, version int64) {
	data, err := encodePartition(p)
	if err != nil {
		r.logger.Warn("partition: encoding failed", zap.Error(err))
		return
	}
	if err := r.cache.Partition().PutPartition(r.catalog.String(), r.layer, p.PartitionID, version, r.versioned, data, 0); err != nil {
		r.logger.Warn("partition: cache write failed", zap.Error(err))
	}
}

// queryPartitions issues one query-endpoint GET for up to
// maxPartitionIDsPerBatch ids and returns the results keyed by id.
func (r *Repository) queryPartitions(ctx *cancel.Context, ids []string, version int64) (map[string]Partition, error) {
	endpoint, err := r.lookup.Lookup(ctx, r.catalog, "query", 1, apilookup.OnlineIfNotFound)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for _, id := range ids {
		query.Add("partition", id)
	}
	query.Set("version", fmt.Sprintf("%d", version))

	path := fmt.Sprintf("%s/layers/%s/partitions?%s", endpoint.BaseURL, r.layer, query.Encode())
	httpReq, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, olperrors.NewUnknown("partition: building partitions request", err)
	}

	resp, err := r.transport.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, olperrors.Newf(olperrors.Unknown, "partition: query failed (status %d)", resp.StatusCode)
	}

	var body partitionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, olperrors.NewUnknown("partition: parsing partitions response", err)
	}

	result := make(map[string]Partition, len(body.Partitions))
	for _, p := range body.Partitions {
		result[p.PartitionID] = p
	}
	return result, nil
}

// GetLayerVersions resolves the layer-versions record for catalogVersion,
// restoring original_source's GetLayerVersions/PutLayerVersions pair
// (SPEC_FULL §5 supplement).
func (r *Repository) GetLayerVersions(ctx *cancel.Context, catalogVersion int64, opt apilookup.FetchOption) (map[string]int64, error) {
	if !opt.SkipsCacheRead() {
		data, ok, err := r.cache.LayerVersions().Get(r.catalog.String(), catalogVersion)
		if err != nil {
			return nil, err
		}
		if ok {
			var lv layerVersions
			if err := json.Unmarshal(data, &lv); err != nil {
				return nil, olperrors.NewUnknown("partition: decoding cached layer versions", err)
			}
			return versionsToMap(lv), nil
		}
		if opt.SkipsNetwork() {
			return nil, olperrors.NewNotFound("CacheOnly: layer versions not cached")
		}
	}

	endpoint, err := r.lookup.Lookup(ctx, r.catalog, "metadata", 1, apilookup.OnlineIfNotFound)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/layerVersions?version=%d", endpoint.BaseURL, catalogVersion)
	httpReq, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, olperrors.NewUnknown("partition: building layerVersions request", err)
	}
	resp, err := r.transport.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, olperrors.Newf(olperrors.Unknown, "partition: layerVersions fetch failed (status %d)", resp.StatusCode)
	}

	var lv layerVersions
	if err := json.NewDecoder(resp.Body).Decode(&lv); err != nil {
		return nil, olperrors.NewUnknown("partition: parsing layerVersions response", err)
	}
	lv.CatalogVersion = catalogVersion

	if opt != apilookup.OnlineOnly {
		encoded, err := json.Marshal(lv)
		if err == nil {
			if err := r.cache.LayerVersions().Put(r.catalog.String(), catalogVersion, encoded, 0); err != nil {
				r.logger.Warn("partition: layerVersions cache write failed", zap.Error(err))
			}
		}
	}
	return versionsToMap(lv), nil
}

func versionsToMap(lv layerVersions) map[string]int64 {
	m := make(map[string]int64, len(lv.LayerVersions))
	for _, v := range lv.LayerVersions {
		m[v.Layer] = v.Version
	}
	return m
}

// RemoveFromCache evicts a single partition's metadata cache entry,
// restoring original_source's PartitionsCacheRepository::ClearPartitionMetadata
// (SPEC_FULL §5).
func (r *Repository) RemoveFromCache(partitionID string, version int64) error {
	return r.cache.Partition().RemovePartition(r.catalog.String(), r.layer, partitionID, version, r.versioned)
}

// StreamPartitions issues a full-layer GET and invokes onPartition once per
// decoded partition in response order (spec §4.G.4). Iteration stops at the
// first error onPartition returns, at context cancellation, or at stream
// exhaustion.
func (r *Repository) StreamPartitions(ctx *cancel.Context, version int64, required []Field, tag string, onPartition func(Partition) error) error {
	endpoint, err := r.lookup.Lookup(ctx, r.catalog, "query", 1, apilookup.OnlineIfNotFound)
	if err != nil {
		return err
	}

	req := transport.NewRequest().With("version", fmt.Sprintf("%d", version)).WithBillingTag(tag)
	if len(required) > 0 {
		req.With("additionalFields", encodeFieldNames(required))
	}
	path := fmt.Sprintf("%s/layers/%s/partitions%s", endpoint.BaseURL, r.layer, req.Encode())

	httpReq, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return olperrors.NewUnknown("partition: building stream request", err)
	}
	resp, err := r.transport.Do(ctx, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return olperrors.Newf(olperrors.Unknown, "partition: stream failed (status %d)", resp.StatusCode)
	}

	var body partitionsResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&body); err != nil {
		return olperrors.NewUnknown("partition: parsing stream response", err)
	}

	for _, p := range body.Partitions {
		if ctx != nil && ctx.IsCancelled() {
			return olperrors.NewCancelled("partition: stream cancelled")
		}
		if err := onPartition(p); err != nil {
			return err
		}
	}
	return nil
}

func encodeFieldNames(fields []Field) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case FieldChecksum:
			names = append(names, "checksum")
		case FieldCRC:
			names = append(names, "crc")
		case FieldDataSize:
			names = append(names, "dataSize")
		case FieldCompressedDataSize:
			names = append(names, "compressedDataSize")
		}
	}
	sort.Strings(names)
	joined := ""
	for i, n := range names {
		if i > 0 {
			joined += ","
		}
		joined += n
	}
	return joined
}

func hasAllEntryFields(e quadtree.Entry, required []Field) bool {
	return entryToPartition(e).hasAll(required)
}

func entryToPartition(e quadtree.Entry) Partition {
	tileHere := e.Tile.HereTile()
	return Partition{
		PartitionID:        tileHere,
		DataHandle:         e.DataHandle,
		Version:            e.Version,
		Checksum:           e.Checksum,
		CRC:                e.CRC,
		DataSize:           e.DataSize,
		CompressedDataSize: e.CompressedDataSize,
	}
}
