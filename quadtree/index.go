// Package quadtree implements the byte-serialized quad-tree index returned
// by GET {layer}/versions/{v}/quadkeys/{root}/depths/{D} (spec §6.3): the
// rooted subtree out to depth D as subQuads, plus the chain of ancestor
// tiles outside the subtree as parentQuads, used by component G to locate
// a partition's data handle without a full partition list.
package quadtree

import (
	"encoding/json"

	"github.com/heremaps/olp-sdk-go/geo"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// Entry is one tile's metadata within a quad-tree response. Version,
// Checksum, CRC, DataSize and CompressedDataSize are optional per spec §3's
// Partition fields and are left at their zero value when absent.
type Entry struct {
	Tile               geo.TileKey
	DataHandle         string
	Version            *int64
	Checksum           string
	CRC                string
	DataSize           *int64
	CompressedDataSize *int64
}

// wireSubQuad mirrors the REST subQuads element shape; subQuadKey is a
// HERE-tile-scheme quadkey relative to the response's root tile.
type wireSubQuad struct {
	SubQuadKey         string `json:"subQuadKey"`
	Version            *int64 `json:"version,omitempty"`
	DataHandle         string `json:"dataHandle"`
	Checksum           string `json:"checksum,omitempty"`
	CRC                string `json:"crc,omitempty"`
	DataSize           *int64 `json:"dataSize,omitempty"`
	CompressedDataSize *int64 `json:"compressedDataSize,omitempty"`
}

// wireParentQuad mirrors the REST parentQuads element shape; partition is
// the ancestor tile's absolute HERE-tile-scheme quadkey.
type wireParentQuad struct {
	Partition          string `json:"partition"`
	Version            *int64 `json:"version,omitempty"`
	DataHandle         string `json:"dataHandle"`
	Checksum           string `json:"checksum,omitempty"`
	CRC                string `json:"crc,omitempty"`
	DataSize           *int64 `json:"dataSize,omitempty"`
	CompressedDataSize *int64 `json:"compressedDataSize,omitempty"`
}

type wireIndex struct {
	SubQuads    []wireSubQuad    `json:"subQuads"`
	ParentQuads []wireParentQuad `json:"parentQuads"`
}

// Index is an immutable, byte-serialized quad-tree: Parse keeps a private
// copy of the raw response bytes, and Bytes returns exactly the
// bytes it was parsed from so a cache round-trip is bit-identical (spec
// §8's "serialize -> parse -> re-serialize" invariant is trivially
// satisfied by never re-encoding).
type Index struct {
	raw         []byte
	root        geo.TileKey
	depth       int
	subQuads    []Entry
	parentQuads []Entry
}

// Parse decodes raw (the lookup response body) into an Index rooted at
// root out to depth. raw is retained verbatim for Bytes.
func Parse(raw []byte, root geo.TileKey, depth int) (*Index, error) {
	var wire wireIndex
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, olperrors.NewUnknown("quadtree: parsing index", err)
	}

	idx := &Index{
		raw:   append([]byte(nil), raw...),
		root:  root,
		depth: depth,
	}

	for _, sq := range wire.SubQuads {
		relative, err := geo.FromHereTile(sq.SubQuadKey)
		if err != nil {
			return nil, olperrors.Newf(olperrors.Unknown, "quadtree: invalid subQuadKey %q: %v", sq.SubQuadKey, err)
		}
		idx.subQuads = append(idx.subQuads, Entry{
			Tile:               composeRelative(root, relative),
			DataHandle:         sq.DataHandle,
			Version:            sq.Version,
			Checksum:           sq.Checksum,
			CRC:                sq.CRC,
			DataSize:           sq.DataSize,
			CompressedDataSize: sq.CompressedDataSize,
		})
	}

	for _, pq := range wire.ParentQuads {
		tile, err := geo.FromHereTile(pq.Partition)
		if err != nil {
			return nil, olperrors.Newf(olperrors.Unknown, "quadtree: invalid partition %q: %v", pq.Partition, err)
		}
		idx.parentQuads = append(idx.parentQuads, Entry{
			Tile:               tile,
			DataHandle:         pq.DataHandle,
			Version:            pq.Version,
			Checksum:           pq.Checksum,
			CRC:                pq.CRC,
			DataSize:           pq.DataSize,
			CompressedDataSize: pq.CompressedDataSize,
		})
	}

	return idx, nil
}

// composeRelative combines root with a tile key expressed relative to it
// (the subQuadKey scheme: level/row/column counted from the root, not from
// level 0).
func composeRelative(root, relative geo.TileKey) geo.TileKey {
	return geo.New(
		root.Level+relative.Level,
		(root.Row<<relative.Level)|relative.Row,
		(root.Column<<relative.Level)|relative.Column,
	)
}

// Bytes returns the exact bytes Index was parsed from.
func (idx *Index) Bytes() []byte {
	return idx.raw
}

// Root returns the tile the index is rooted at.
func (idx *Index) Root() geo.TileKey {
	return idx.root
}

// Depth returns the subtree depth the index covers.
func (idx *Index) Depth() int {
	return idx.depth
}

// SubQuads returns every tile entry within the rooted subtree, in
// whatever order the response listed them — used by the prefetch
// resolvers (component I) to walk an entire cached tree's tiles rather
// than looking one up at a time.
func (idx *Index) SubQuads() []Entry {
	return idx.subQuads
}

// Find looks up tile among the rooted subtree's sub-quads (get_tile, spec
// §4.G.1): only tiles within [root, root+depth] are ever present here.
func (idx *Index) Find(tile geo.TileKey) (Entry, bool) {
	for _, e := range idx.subQuads {
		if e.Tile == tile {
			return e, true
		}
	}
	return Entry{}, false
}

// FindAggregated walks tile's ancestor chain through sub-quads first, then
// parent-quads, returning the first entry found with a non-empty data
// handle (get_aggregated_tile, spec §4.G.2: the nearest ancestor that
// actually carries data).
func (idx *Index) FindAggregated(tile geo.TileKey) (Entry, bool) {
	for level := tile; ; {
		if e, ok := idx.Find(level); ok && e.DataHandle != "" {
			return e, true
		}
		if e, ok := idx.findParent(level); ok && e.DataHandle != "" {
			return e, true
		}
		if level.Level == 0 {
			return Entry{}, false
		}
		level = level.ChangedLevelBy(-1)
	}
}

func (idx *Index) findParent(tile geo.TileKey) (Entry, bool) {
	for _, e := range idx.parentQuads {
		if e.Tile == tile {
			return e, true
		}
	}
	return Entry{}, false
}
