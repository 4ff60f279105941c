package prefetch

import (
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/hrn"
	"github.com/heremaps/olp-sdk-go/quadtree"
)

// ReleaseResolver computes the keys_to_release list for a single
// (catalog, layer, version), remembering every quad-tree root it has
// already inspected (and, for each, the map of its still-other-protected
// tiles) across calls so repeated GetKeysToRelease calls against
// overlapping tile sets don't re-read the cache (spec §4.I.2;
// original_source's ReleaseDependencyResolver keeps this same state per
// prefetch request for the same reason).
type ReleaseResolver struct {
	cache   *cache.Facade
	catalog hrn.HRN
	layer   string
	version int64

	// visited maps a quad-tree root to the set of its OTHER (non-released)
	// still-protected tiles (tile -> data-handle cache key). A root present
	// with an empty map means "already checked, nothing else protected" or
	// "not cached at all" — both cases skip a repeat cache read.
	visited map[geo.TileKey]map[geo.TileKey]string
}

// NewReleaseResolver builds a resolver bound to (catalog, layer, version).
func NewReleaseResolver(c *cache.Facade, catalog hrn.HRN, layer string, version int64) *ReleaseResolver {
	return &ReleaseResolver{cache: c, catalog: catalog, layer: layer, version: version, visited: make(map[geo.TileKey]map[geo.TileKey]string)}
}

// GetKeysToRelease returns the ordered list of cache keys to pass to
// cache.Facade.Release for tiles (spec §4.I.2). Duplicate tiles in the
// input are processed once.
func (r *ReleaseResolver) GetKeysToRelease(tiles []geo.TileKey) []string {
	requested := dedupe(tiles)
	requestedSet := make(map[geo.TileKey]bool, len(requested))
	for _, t := range requested {
		requestedSet[t] = true
	}

	var keys []string
	for _, tile := range requested {
		keys = append(keys, r.processTileKey(tile, requestedSet)...)
	}
	return keys
}

func dedupe(tiles []geo.TileKey) []geo.TileKey {
	seen := make(map[geo.TileKey]bool, len(tiles))
	unique := make([]geo.TileKey, 0, len(tiles))
	for _, t := range tiles {
		if seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}
	return unique
}

// processTileKey walks tile's ancestor chain up to quadTreeDepth, checking
// each candidate quad-tree root — already visited or not — for a
// still-protected entry belonging to tile. At most one data-handle key is
// emitted for tile even if more than one ancestor root turns out to cover
// it (addKey, mirroring the C++ original's by-reference add_key guard
// shared across the whole ancestor walk for this tile).
func (r *ReleaseResolver) processTileKey(tile geo.TileKey, requested map[geo.TileKey]bool) []string {
	addKey := true
	var keys []string

	maxDepth := quadTreeDepth
	if int(tile.Level) < maxDepth {
		maxDepth = int(tile.Level)
	}

	for k := 0; k <= maxDepth; k++ {
		root := tile.ChangedLevelBy(-k)

		if protected, ok := r.visited[root]; ok {
			handle, found := protected[tile]
			if !found {
				continue
			}
			if addKey {
				keys = append(keys, handle)
				addKey = false
			}
			delete(protected, tile)
			if len(protected) == 0 {
				keys = append(keys, r.cache.QuadTree().Key(r.catalog.String(), r.layer, root.HereTile(), r.version, quadTreeDepth))
			}
			continue
		}

		keys = append(keys, r.loadQuadTreeCache(root, tile, &addKey, requested)...)
	}
	return keys
}

// loadQuadTreeCache reads the quad-tree cached at root (if any), separates
// its still-protected entries into tile's own key (if any) and every other
// tile's key, releases the quad-tree's own key when no other protected
// tile remains outside the requested set, and memoizes the "other tiles"
// map in r.visited either way.
func (r *ReleaseResolver) loadQuadTreeCache(root, tile geo.TileKey, addKey *bool, requested map[geo.TileKey]bool) []string {
	raw, ok, err := r.cache.QuadTree().Get(r.catalog.String(), r.layer, root.HereTile(), r.version, quadTreeDepth)
	if err != nil || !ok {
		r.visited[root] = map[geo.TileKey]string{}
		return nil
	}
	idx, err := quadtree.Parse(raw, root, quadTreeDepth)
	if err != nil {
		r.visited[root] = map[geo.TileKey]string{}
		return nil
	}

	otherProtected := make(map[geo.TileKey]string)
	var keys []string
	hasOther := false
	allOthersRequested := true

	for _, e := range idx.SubQuads() {
		if e.DataHandle == "" {
			continue
		}
		handleKey := r.cache.Data().Key(r.catalog.String(), r.layer, e.DataHandle)
		if !r.cache.IsProtected(handleKey) {
			continue
		}
		if e.Tile == tile {
			if *addKey {
				keys = append(keys, handleKey)
				*addKey = false
			}
			continue
		}
		hasOther = true
		otherProtected[e.Tile] = handleKey
		if !requested[e.Tile] {
			allOthersRequested = false
		}
	}

	if !hasOther || allOthersRequested {
		keys = append(keys, r.cache.QuadTree().Key(r.catalog.String(), r.layer, root.HereTile(), r.version, quadTreeDepth))
	}
	r.visited[root] = otherProtected
	return keys
}
