package prefetch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/cache"
	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/hrn"
	"github.com/heremaps/olp-sdk-go/prefetch"
)

const testCatalog = "hrn:here:data::olp-here-test:hereos-internal-test-v2"

func newTestFacade(t *testing.T) *cache.Facade {
	t.Helper()
	return cache.NewFacade(cache.NewMemoryKeyValueCache(1000, time.Hour, nil), time.Hour, true)
}

// treeResponse builds a subQuads-only quad-tree response body. entries are
// "subQuadKey:dataHandle" pairs.
func treeResponse(entries ...[2]string) string {
	body := `{"subQuads":[`
	for i, e := range entries {
		if i > 0 {
			body += ","
		}
		body += `{"subQuadKey":"` + e[0] + `","dataHandle":"` + e[1] + `"}`
	}
	body += `],"parentQuads":[]}`
	return body
}

func TestProtectResolver_CachedTreeYieldsDataHandleAndQuadTreeKeys(t *testing.T) {
	f := newTestFacade(t)
	catalog := hrn.MustParse(testCatalog)

	// tileA is a direct level-4 descendant of the absolute root, so its
	// subQuadKey equals its own HERE-tile code ("355"), per the same
	// morton arithmetic geo.TileKey.HereTile implements.
	tileA := geo.New(4, 5, 9)
	raw := []byte(treeResponse([2]string{"355", "handle-a"}))
	require.NoError(t, f.QuadTree().Put(testCatalog, "my-layer", "1", 100, 4, raw, time.Hour))

	resolver := prefetch.NewProtectResolver(f, catalog, "my-layer", 100)
	keys := resolver.GetKeysToProtect([]geo.TileKey{tileA})

	require.Len(t, keys, 2)
	assert.Equal(t, f.Data().Key(testCatalog, "my-layer", "handle-a"), keys[0])
	assert.Equal(t, f.QuadTree().Key(testCatalog, "my-layer", "1", 100, 4), keys[1])
}

func TestProtectResolver_UncachedTileContributesNothing(t *testing.T) {
	f := newTestFacade(t)
	catalog := hrn.MustParse(testCatalog)

	resolver := prefetch.NewProtectResolver(f, catalog, "my-layer", 100)
	keys := resolver.GetKeysToProtect([]geo.TileKey{geo.New(4, 1, 1)})

	assert.Empty(t, keys)
}

func TestProtectResolver_MemoizesTreeAcrossTiles(t *testing.T) {
	f := newTestFacade(t)
	catalog := hrn.MustParse(testCatalog)

	tileA := geo.New(4, 5, 9)
	tileB := geo.New(4, 5, 10)
	raw := []byte(treeResponse([2]string{"355", "handle-a"}, [2]string{"358", "handle-b"}))
	require.NoError(t, f.QuadTree().Put(testCatalog, "my-layer", "1", 100, 4, raw, time.Hour))

	resolver := prefetch.NewProtectResolver(f, catalog, "my-layer", 100)
	keys := resolver.GetKeysToProtect([]geo.TileKey{tileA, tileB})

	// The quad-tree's own key is only emitted once, on the tile that first
	// causes the tree to be loaded; the second tile's tree is already
	// memoized.
	require.Len(t, keys, 3)
	assert.Equal(t, f.Data().Key(testCatalog, "my-layer", "handle-a"), keys[0])
	assert.Equal(t, f.QuadTree().Key(testCatalog, "my-layer", "1", 100, 4), keys[1])
	assert.Equal(t, f.Data().Key(testCatalog, "my-layer", "handle-b"), keys[2])
}
