package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/cache"
)

func TestMemoryKeyValueCache_SetGet(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(10, time.Hour, nil)

	require.NoError(t, kv.Set("k", []byte("v"), 0))
	value, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(value))
}

func TestMemoryKeyValueCache_ExpiredEntryIsMiss(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(10, time.Hour, nil)
	require.NoError(t, kv.Set("k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKeyValueCache_LRUEvictsOldest(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(2, time.Hour, nil)
	require.NoError(t, kv.Set("a", []byte("1"), 0))
	require.NoError(t, kv.Set("b", []byte("2"), 0))
	require.NoError(t, kv.Set("c", []byte("3"), 0))

	_, ok, _ := kv.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok, _ = kv.Get("c")
	assert.True(t, ok)
}

func TestMemoryKeyValueCache_ClearPrefix(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(10, time.Hour, nil)
	require.NoError(t, kv.Set("cat::layer::a::partition", []byte("1"), 0))
	require.NoError(t, kv.Set("cat::layer::b::partition", []byte("2"), 0))
	require.NoError(t, kv.Set("other::key", []byte("3"), 0))

	n, err := kv.ClearPrefix("cat::layer::")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := kv.Get("other::key")
	assert.True(t, ok)
}

func TestMemoryKeyValueCache_Delete(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(10, time.Hour, nil)
	require.NoError(t, kv.Set("k", []byte("v"), 0))
	require.NoError(t, kv.Delete("k"))

	_, ok, _ := kv.Get("k")
	assert.False(t, ok)
}

func TestMemoryKeyValueCache_ProtectSkipsLRUEviction(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(2, time.Hour, nil)
	require.NoError(t, kv.Set("a", []byte("1"), 0))
	require.NoError(t, kv.Protect("a"))
	require.NoError(t, kv.Set("b", []byte("2"), 0))
	require.NoError(t, kv.Set("c", []byte("3"), 0))

	_, ok, _ := kv.Get("a")
	assert.True(t, ok, "protected entry must survive eviction even though it is oldest")
	_, ok, _ = kv.Get("b")
	assert.False(t, ok, "the oldest unprotected entry is evicted instead")
}

func TestMemoryKeyValueCache_ReleaseReenablesEviction(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(2, time.Hour, nil)
	require.NoError(t, kv.Set("a", []byte("1"), 0))
	require.NoError(t, kv.Protect("a"))
	require.NoError(t, kv.Release("a"))
	require.NoError(t, kv.Set("b", []byte("2"), 0))
	require.NoError(t, kv.Set("c", []byte("3"), 0))

	_, ok, _ := kv.Get("a")
	assert.False(t, ok, "a released entry is eligible for eviction again")
}

func TestMemoryKeyValueCache_IsProtected(t *testing.T) {
	kv := cache.NewMemoryKeyValueCache(10, time.Hour, nil)
	assert.False(t, kv.IsProtected("k"))
	require.NoError(t, kv.Protect("k"))
	assert.True(t, kv.IsProtected("k"))
	require.NoError(t, kv.Release("k"))
	assert.False(t, kv.IsProtected("k"))
}
