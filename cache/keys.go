// Package cache wraps an underlying byte-blob key/value cache with the
// canonical key schemas of spec §6.1 and exposes four typed repositories
// (component B, spec §4.B): API, partition metadata, quad-tree, and data.
package cache

import "fmt"

// apiKey builds the API cache key: "{catalog}::{service}::{version}::api".
func apiKey(catalog, service string, version int64) string {
	return fmt.Sprintf("%s::%s::%d::api", catalog, service, version)
}

// partitionKey builds the per-version partition key:
// "{catalog}::{layer}::{partition_id}::{version}::partition". For volatile
// layers (versioned == false) the version section is omitted.
func partitionKey(catalog, layer, partitionID string, version int64, versioned bool) string {
	if !versioned {
		return fmt.Sprintf("%s::%s::%s::partition", catalog, layer, partitionID)
	}
	return fmt.Sprintf("%s::%s::%s::%d::partition", catalog, layer, partitionID, version)
}

// partitionsListKey builds the layer-metadata key that stores the set of
// partition ids present for (catalog, layer, version):
// "{catalog}::{layer}::{version}::partitions".
func partitionsListKey(catalog, layer string, version int64) string {
	return fmt.Sprintf("%s::%s::%d::partitions", catalog, layer, version)
}

// quadTreeKey builds the quad-tree key:
// "{catalog}::{layer}::{root_tile_here_string}::{version}::{depth}::quadtree".
func quadTreeKey(catalog, layer, rootTileHere string, version int64, depth int) string {
	return fmt.Sprintf("%s::%s::%s::%d::%d::quadtree", catalog, layer, rootTileHere, version, depth)
}

// dataHandleKey builds the data cache key: "{catalog}::{layer}::{data_handle}".
func dataHandleKey(catalog, layer, dataHandle string) string {
	return fmt.Sprintf("%s::%s::%s", catalog, layer, dataHandle)
}

// layerVersionsKey builds the layer-versions key:
// "{catalog}::{catalog_version}::layerversions".
func layerVersionsKey(catalog string, catalogVersion int64) string {
	return fmt.Sprintf("%s::%d::layerversions", catalog, catalogVersion)
}
