package ingest

import (
	"container/list"
	"sync"

	"github.com/arkilian/chunkstats/internal/chunk"
)

// DefaultCacheBytes bounds the decoded chunks kept by Load.
const DefaultCacheBytes = 64 * 1024 * 1024

// metadataCache is an LRU of decoded chunk metadata keyed by chunk ID.
// Entries are weighed by the size of the index file they were read from.
type metadataCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64

	// items maps chunk ID → list element (whose value is *cacheEntry)
	items map[string]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	chunkID   string
	meta      *chunk.Metadata
	sizeBytes int64
}

func newMetadataCache(maxBytes int64) *metadataCache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &metadataCache{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the cached metadata for a chunk and promotes it.
func (c *metadataCache) get(chunkID string) (*chunk.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[chunkID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).meta, true
}

// put records decoded metadata. If adding it exceeds maxBytes, LRU entries are evicted.
func (c *metadataCache) put(meta *chunk.Metadata, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[meta.ID]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes += sizeBytes - old.sizeBytes
		old.meta = meta
		old.sizeBytes = sizeBytes
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&cacheEntry{chunkID: meta.ID, meta: meta, sizeBytes: sizeBytes})
		c.items[meta.ID] = elem
		c.curBytes += sizeBytes
	}

	// Always keep the newest entry, even when it alone exceeds the limit.
	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
	}
}

// remove drops a chunk, e.g. after it was deleted.
func (c *metadataCache) remove(chunkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[chunkID]; ok {
		c.removeLocked(elem)
	}
}

// Caller must hold c.mu.
func (c *metadataCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.chunkID)
	c.curBytes -= entry.sizeBytes
}

func (c *metadataCache) size() (int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), c.curBytes
}
