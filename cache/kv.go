package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KeyValueCache is the external-collaborator byte-blob cache the four
// typed repositories in facade.go are built on top of. Implementations may
// be in-memory (MemoryKeyValueCache, the default), disk-backed, or a remote
// cache; none of the repositories care which, as long as Get/Set/Delete
// behave as documented here.
type KeyValueCache interface {
	// Get returns the stored value and true, or nil and false if absent or
	// expired. A non-nil error means the underlying cache itself failed
	// (I/O, corruption); absence is not an error.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key with the given TTL. TTL <= 0 means "use
	// the cache's default expiration".
	Set(key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(key string) error
	// ClearPrefix removes every key with the given prefix, returning the
	// number removed.
	ClearPrefix(prefix string) (int, error)
	// Protect pins key against LRU eviction until a matching Release.
	// Protecting an absent key still records the pin; a later Set for that
	// key remains protected.
	Protect(key string) error
	// Release unpins a previously protected key. Releasing an unprotected
	// or absent key is not an error.
	Release(key string) error
	// IsProtected reports whether key is currently pinned.
	IsProtected(key string) bool
}

type cacheItem struct {
	key        string
	value      []byte
	expiry     time.Time
	lruElement *list.Element
}

// MemoryKeyValueCache is an in-memory KeyValueCache with LRU eviction by
// item count and a configurable default TTL.
type MemoryKeyValueCache struct {
	mu         sync.Mutex
	items      map[string]*cacheItem
	lruList    *list.List
	maxItems   int
	defaultTTL time.Duration
	logger     *zap.Logger
	protected  map[string]bool
}

// NewMemoryKeyValueCache returns an in-memory cache holding at most
// maxItems entries (oldest-accessed evicted first), using defaultTTL when
// Set is called with ttl <= 0. maxItems <= 0 means unbounded.
func NewMemoryKeyValueCache(maxItems int, defaultTTL time.Duration, logger *zap.Logger) *MemoryKeyValueCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryKeyValueCache{
		items:      make(map[string]*cacheItem),
		lruList:    list.New(),
		maxItems:   maxItems,
		defaultTTL: defaultTTL,
		logger:     logger,
		protected:  make(map[string]bool),
	}
}

func (c *MemoryKeyValueCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiry.IsZero() && time.Now().After(item.expiry) {
		c.removeLocked(item)
		return nil, false, nil
	}

	c.lruList.MoveToFront(item.lruElement)
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

func (c *MemoryKeyValueCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.removeLocked(existing)
	}

	for c.maxItems > 0 && len(c.items) >= c.maxItems {
		victim := c.oldestUnprotectedLocked()
		if victim == nil {
			// Every resident item is protected; exceed maxItems rather than
			// evict a pinned entry (spec §6 "protect/release are advisory
			// against eviction but not against explicit remove").
			break
		}
		c.removeLocked(victim)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	item := &cacheItem{key: key, value: stored}
	if ttl > 0 {
		item.expiry = time.Now().Add(ttl)
	}
	item.lruElement = c.lruList.PushFront(item)
	c.items[key] = item
	return nil
}

func (c *MemoryKeyValueCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		c.removeLocked(item)
	}
	return nil
}

func (c *MemoryKeyValueCache) ClearPrefix(prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*cacheItem
	for key, item := range c.items {
		if strings.HasPrefix(key, prefix) {
			toRemove = append(toRemove, item)
		}
	}
	for _, item := range toRemove {
		c.removeLocked(item)
	}
	return len(toRemove), nil
}

// removeLocked must be called with c.mu held.
func (c *MemoryKeyValueCache) removeLocked(item *cacheItem) {
	if item.lruElement != nil {
		c.lruList.Remove(item.lruElement)
	}
	delete(c.items, item.key)
}

// oldestUnprotectedLocked walks the LRU list from the back, returning the
// first item not currently protected, or nil if every resident item is
// protected. Must be called with c.mu held.
func (c *MemoryKeyValueCache) oldestUnprotectedLocked() *cacheItem {
	for e := c.lruList.Back(); e != nil; e = e.Prev() {
		item := e.Value.(*cacheItem)
		if !c.protected[item.key] {
			return item
		}
	}
	return nil
}

// Protect pins key against LRU eviction. The pin survives across Set calls
// for the same key until a matching Release.
func (c *MemoryKeyValueCache) Protect(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protected[key] = true
	return nil
}

// Release unpins key.
func (c *MemoryKeyValueCache) Release(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.protected, key)
	return nil
}

// IsProtected reports whether key is currently pinned.
func (c *MemoryKeyValueCache) IsProtected(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protected[key]
}
