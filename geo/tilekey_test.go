package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/geo"
)

func TestTileKey_Valid(t *testing.T) {
	assert.True(t, geo.New(2, 3, 3).Valid())
	assert.False(t, geo.New(2, 4, 0).Valid())
	assert.False(t, geo.New(2, 0, 4).Valid())
}

func TestChangedLevelBy_Ancestor(t *testing.T) {
	tile := geo.New(10, 500, 300)
	ancestor := tile.ChangedLevelBy(-4)
	assert.Equal(t, uint32(6), ancestor.Level)
	assert.True(t, tile.IsChildOf(ancestor))
}

func TestChangedLevelBy_Zero(t *testing.T) {
	tile := geo.New(5, 10, 10)
	assert.Equal(t, tile, tile.ChangedLevelBy(0))
}

func TestChangedLevelBy_Descendant(t *testing.T) {
	tile := geo.New(4, 3, 5)
	descOrigin := tile.ChangedLevelBy(2)
	assert.Equal(t, uint32(6), descOrigin.Level)
	assert.Equal(t, uint32(12), descOrigin.Row)
	assert.Equal(t, uint32(20), descOrigin.Column)
}

func TestString_Deterministic(t *testing.T) {
	a := geo.New(4, 3, 5)
	b := geo.New(4, 3, 5)
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, "4_3_5", a.String())
}

func TestHereTile_RoundTrip(t *testing.T) {
	cases := []geo.TileKey{
		geo.New(0, 0, 0),
		geo.New(1, 0, 0),
		geo.New(1, 1, 1),
		geo.New(10, 123, 456),
		geo.New(16, 54321, 12345),
	}
	for _, tile := range cases {
		here := tile.HereTile()
		decoded, err := geo.FromHereTile(here)
		require.NoError(t, err)
		assert.Equal(t, tile, decoded)
	}
}

func TestHereTile_LevelOneQuadrants(t *testing.T) {
	assert.Equal(t, "4", geo.New(1, 0, 0).HereTile())
	assert.Equal(t, "5", geo.New(1, 0, 1).HereTile())
	assert.Equal(t, "6", geo.New(1, 1, 0).HereTile())
	assert.Equal(t, "7", geo.New(1, 1, 1).HereTile())
}

func TestFromHereTile_InvalidInput(t *testing.T) {
	_, err := geo.FromHereTile("not-a-number")
	assert.Error(t, err)

	_, err = geo.FromHereTile("0")
	assert.Error(t, err)
}

func TestIsChildOf(t *testing.T) {
	root := geo.New(0, 0, 0)
	tile := geo.New(4, 3, 5)
	assert.True(t, tile.IsChildOf(root))
	assert.False(t, root.IsChildOf(tile))
}
