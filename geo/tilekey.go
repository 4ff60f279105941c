// Package geo implements the quad-tree tile key addressing scheme used to
// locate partitions in tiled layers (spec §3 "Tile key").
package geo

import (
	"fmt"
	"strconv"
)

// MaxLevel is the deepest supported tile level; row and column both fit in
// a uint32 at this depth.
const MaxLevel = 31

// TileKey addresses a quad-tree cell: level selects the subdivision depth,
// row/column select the cell within that level's 2^level x 2^level grid.
type TileKey struct {
	Level  uint32
	Row    uint32
	Column uint32
}

// New constructs a TileKey without bounds checking; use Valid to check it.
func New(level, row, column uint32) TileKey {
	return TileKey{Level: level, Row: row, Column: column}
}

// Valid reports whether 0 <= Row,Column < 2^Level.
func (t TileKey) Valid() bool {
	if t.Level > MaxLevel {
		return false
	}
	span := uint32(1) << t.Level
	return t.Row < span && t.Column < span
}

// ChangedLevelBy returns the ancestor (delta < 0) or descendant-origin
// (delta > 0) tile obtained by truncating this tile's row/column toward the
// target level. delta == 0 returns t unchanged. If level+delta would be
// negative the level-0 root tile is returned; if it would be beyond
// MaxLevel the result is not Valid().
func (t TileKey) ChangedLevelBy(delta int) TileKey {
	newLevel := int(t.Level) + delta
	if newLevel < 0 {
		return TileKey{Level: 0, Row: 0, Column: 0}
	}
	if delta >= 0 {
		shift := uint32(delta)
		return TileKey{
			Level:  uint32(newLevel),
			Row:    t.Row << shift,
			Column: t.Column << shift,
		}
	}
	shift := uint32(-delta)
	return TileKey{
		Level:  uint32(newLevel),
		Row:    t.Row >> shift,
		Column: t.Column >> shift,
	}
}

// IsChildOf reports whether t lies within ancestor's subtree, i.e. whether
// t.ChangedLevelBy(ancestor.Level - t.Level) == ancestor.
func (t TileKey) IsChildOf(ancestor TileKey) bool {
	if ancestor.Level > t.Level {
		return false
	}
	return t.ChangedLevelBy(int(ancestor.Level) - int(t.Level)) == ancestor
}

// String returns a deterministic "level_row_column" representation.
func (t TileKey) String() string {
	return fmt.Sprintf("%d_%d_%d", t.Level, t.Row, t.Column)
}

// HereTile encodes t using the "quadkey with leading 1-bit" scheme the OLP
// REST surface uses in URL path segments (e.g. "23247", "5904591").
func (t TileKey) HereTile() string {
	// The classic Bing/HERE quadkey morton-interleaves row/column bits and
	// prefixes a leading 1 so that leading zero quadrants don't get lost in
	// decimal form.
	morton := uint64(1)
	for level := int(t.Level) - 1; level >= 0; level-- {
		rowBit := (t.Row >> uint(level)) & 1
		colBit := (t.Column >> uint(level)) & 1
		morton = (morton << 2) | uint64(rowBit<<1) | uint64(colBit)
	}
	return strconv.FormatUint(morton, 10)
}

// FromHereTile decodes the "1-prefixed morton code" scheme produced by
// HereTile back into a TileKey.
func FromHereTile(here string) (TileKey, error) {
	morton, err := strconv.ParseUint(here, 10, 64)
	if err != nil {
		return TileKey{}, fmt.Errorf("geo: invalid here-tile %q: %w", here, err)
	}
	if morton == 0 {
		return TileKey{}, fmt.Errorf("geo: invalid here-tile %q: no leading marker bit", here)
	}

	// Level is (bit length of morton - 1) / 2, since each level contributes
	// two bits and the highest set bit is the leading marker.
	bits := 0
	for m := morton; m > 1; m >>= 1 {
		bits++
	}
	level := uint32(bits / 2)

	var row, column uint32
	for i := int(level) - 1; i >= 0; i-- {
		pair := (morton >> uint(2*i)) & 0x3
		row = (row << 1) | uint32((pair>>1)&1)
		column = (column << 1) | uint32(pair&1)
	}

	return TileKey{Level: level, Row: row, Column: column}, nil
}
