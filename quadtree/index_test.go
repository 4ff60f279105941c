package quadtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/geo"
	"github.com/heremaps/olp-sdk-go/quadtree"
)

const sampleResponse = `{
  "subQuads": [
    {"subQuadKey": "1", "version": 1, "dataHandle": "root-handle"},
    {"subQuadKey": "4", "version": 1, "dataHandle": "child-handle"},
    {"subQuadKey": "5", "version": 1, "dataHandle": ""}
  ],
  "parentQuads": [
    {"partition": "23618", "version": 1, "dataHandle": "ancestor-handle"}
  ]
}`

func mustRoot(t *testing.T) geo.TileKey {
	t.Helper()
	root, err := geo.FromHereTile("92259")
	require.NoError(t, err)
	return root
}

func TestParse_BytesRoundTripIsBitIdentical(t *testing.T) {
	root := mustRoot(t)
	idx, err := quadtree.Parse([]byte(sampleResponse), root, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte(sampleResponse), idx.Bytes())
}

func TestIndex_FindLocatesRootTile(t *testing.T) {
	root := mustRoot(t)
	idx, err := quadtree.Parse([]byte(sampleResponse), root, 4)
	require.NoError(t, err)

	e, ok := idx.Find(root)
	require.True(t, ok)
	assert.Equal(t, "root-handle", e.DataHandle)
}

func TestIndex_FindMissingTileReturnsFalse(t *testing.T) {
	root := mustRoot(t)
	idx, err := quadtree.Parse([]byte(sampleResponse), root, 4)
	require.NoError(t, err)

	missing := root.ChangedLevelBy(1).ChangedLevelBy(1)
	_, ok := idx.Find(missing)
	assert.False(t, ok)
}

func TestIndex_FindAggregatedFallsBackToParentQuad(t *testing.T) {
	root := mustRoot(t)
	idx, err := quadtree.Parse([]byte(sampleResponse), root, 4)
	require.NoError(t, err)

	ancestor, err := geo.FromHereTile("23618")
	require.NoError(t, err)

	e, ok := idx.FindAggregated(ancestor)
	require.True(t, ok)
	assert.Equal(t, "ancestor-handle", e.DataHandle)
}

func TestIndex_FindAggregatedSkipsEmptyDataHandleWalkingUp(t *testing.T) {
	root := mustRoot(t)
	idx, err := quadtree.Parse([]byte(sampleResponse), root, 4)
	require.NoError(t, err)

	// "5" decodes to a child one level below root with an empty data
	// handle; the aggregated lookup must walk up to the root entry.
	emptyChild := root.ChangedLevelBy(1)
	emptyChild.Column++

	e, ok := idx.FindAggregated(emptyChild)
	require.True(t, ok)
	assert.NotEmpty(t, e.DataHandle)
}
