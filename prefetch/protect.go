// Package prefetch implements component I: computing the cache keys to
// pin or release for a set of target tiles, so a caller can protect a
// prefetched tile set against eviction and later release it.
package prefetch

import (
	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/hrn"
	"github.com/heremaps/olp-sdk-go/quadtree"
)

// quadTreeDepth is the fixed depth every cached quad-tree in this SDK is
// fetched and stored at (shared with partition.maxQuadTreeDepth; spec
// §4.G.1 step 1 / §4.I).
const quadTreeDepth = 4

// ProtectResolver computes the keys_to_protect list for a single
// (catalog, layer, version) over however many GetKeysToProtect calls a
// caller makes against it, remembering quad-trees already found across
// calls (original_source's ProtectDependencyResolver keeps one instance
// per prefetch request for exactly this reason).
type ProtectResolver struct {
	cache   *cache.Facade
	catalog hrn.HRN
	layer   string
	version int64

	// trees memoizes every quad-tree this resolver has already found (by
	// its root tile), so a later tile in the same tile set that falls
	// under an already-loaded tree's coverage skips the cache lookup.
	trees map[geo.TileKey]*loadedTree
}

type loadedTree struct {
	root    geo.TileKey
	entries map[geo.TileKey]string // tile -> data handle
}

// NewProtectResolver builds a resolver bound to (catalog, layer, version).
func NewProtectResolver(c *cache.Facade, catalog hrn.HRN, layer string, version int64) *ProtectResolver {
	return &ProtectResolver{cache: c, catalog: catalog, layer: layer, version: version, trees: make(map[geo.TileKey]*loadedTree)}
}

// GetKeysToProtect returns the ordered list of cache keys to pass to
// cache.Facade.Protect for tiles (spec §4.I.1). Tiles not resolvable from
// the cache contribute nothing; the caller is expected to retry
// protection for those after a successful online fetch.
func (r *ProtectResolver) GetKeysToProtect(tiles []geo.TileKey) []string {
	var keys []string
	for _, tile := range tiles {
		if tree, ok := r.findLoadedTree(tile); ok {
			if handle, ok := tree.entries[tile]; ok && handle != "" {
				keys = append(keys, r.cache.Data().Key(r.catalog.String(), r.layer, handle))
			}
			continue
		}

		tree, handle, ok := r.loadTreeFromCache(tile)
		if !ok {
			continue
		}
		r.trees[tree.root] = tree
		if handle != "" {
			keys = append(keys, r.cache.Data().Key(r.catalog.String(), r.layer, handle))
			keys = append(keys, r.cache.QuadTree().Key(r.catalog.String(), r.layer, tree.root.HereTile(), r.version, quadTreeDepth))
		}
	}
	return keys
}

// findLoadedTree looks for an already-memoized tree covering tile, trying
// every ancestor root from tile's own level down to the tile's natural
// quad-tree root (spec §4.I.1's "walk tile's ancestors up to depth D").
func (r *ProtectResolver) findLoadedTree(tile geo.TileKey) (*loadedTree, bool) {
	maxDepth := quadTreeDepth
	if int(tile.Level) < maxDepth {
		maxDepth = int(tile.Level)
	}
	for k := 0; k <= maxDepth; k++ {
		root := tile.ChangedLevelBy(-k)
		if tree, ok := r.trees[root]; ok {
			return tree, true
		}
	}
	return nil, false
}

// loadTreeFromCache tries to read a cached quad-tree covering tile from
// the quad-tree cache, trying each ancestor root the same way
// findLoadedTree does. It returns the loaded tree and tile's data handle
// within it (empty if tile itself carries no data), or ok == false if no
// cached tree covers tile at all.
func (r *ProtectResolver) loadTreeFromCache(tile geo.TileKey) (*loadedTree, string, bool) {
	maxDepth := quadTreeDepth
	if int(tile.Level) < maxDepth {
		maxDepth = int(tile.Level)
	}
	for k := 0; k <= maxDepth; k++ {
		root := tile.ChangedLevelBy(-k)
		raw, ok, err := r.cache.QuadTree().Get(r.catalog.String(), r.layer, root.HereTile(), r.version, quadTreeDepth)
		if err != nil || !ok {
			continue
		}
		idx, err := quadtree.Parse(raw, root, quadTreeDepth)
		if err != nil {
			continue
		}
		entries := make(map[geo.TileKey]string, len(idx.SubQuads()))
		for _, e := range idx.SubQuads() {
			entries[e.Tile] = e.DataHandle
		}
		tree := &loadedTree{root: root, entries: entries}
		return tree, entries[tile], true
	}
	return nil, "", false
}
