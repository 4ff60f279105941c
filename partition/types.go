// Package partition implements component G: resolving tiled and non-tiled
// partitions against the quad-tree and partition-metadata caches, falling
// back to the query and quad-tree REST endpoints on a miss.
package partition

import "encoding/json"

// Partition is the data-model type of spec §3: a named unit of data within
// a layer, addressed either by partition id or (for tiled layers) by tile
// key via its data handle.
type Partition struct {
	PartitionID        string `json:"partitionId"`
	DataHandle         string `json:"dataHandle"`
	Version            *int64 `json:"version,omitempty"`
	Checksum           string `json:"checksum,omitempty"`
	CRC                string `json:"crc,omitempty"`
	DataSize           *int64 `json:"dataSize,omitempty"`
	CompressedDataSize *int64 `json:"compressedDataSize,omitempty"`
}

// Field names one of the optional enrichment fields a caller may require
// (spec §4.G.1's required_fields parameter).
type Field int

const (
	FieldChecksum Field = iota
	FieldCRC
	FieldDataSize
	FieldCompressedDataSize
)

// hasAll reports whether p carries every field in required.
func (p Partition) hasAll(required []Field) bool {
	for _, f := range required {
		switch f {
		case FieldChecksum:
			if p.Checksum == "" {
				return false
			}
		case FieldCRC:
			if p.CRC == "" {
				return false
			}
		case FieldDataSize:
			if p.DataSize == nil {
				return false
			}
		case FieldCompressedDataSize:
			if p.CompressedDataSize == nil {
				return false
			}
		}
	}
	return true
}

// partitionsResponse mirrors the REST `{partitions: [...]}` shape (spec
// §6.3).
type partitionsResponse struct {
	Partitions []Partition `json:"partitions"`
}

// layerVersions is the {catalog_version, layer_versions} record restored
// from original_source (SPEC_FULL §5).
type layerVersions struct {
	CatalogVersion int64          `json:"catalogVersion"`
	LayerVersions  []layerVersion `json:"layerVersions"`
}

type layerVersion struct {
	Layer   string `json:"layer"`
	Version int64  `json:"version"`
}

func encodePartition(p Partition) ([]byte, error) { return json.Marshal(p) }

func decodePartition(data []byte) (Partition, error) {
	var p Partition
	err := json.Unmarshal(data, &p)
	return p, err
}

func encodeIDSet(ids []string) ([]byte, error) { return json.Marshal(ids) }

func decodeIDSet(data []byte) ([]string, error) {
	var ids []string
	err := json.Unmarshal(data, &ids)
	return ids, err
}
