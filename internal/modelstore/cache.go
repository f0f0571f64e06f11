package modelstore

import (
	"context"
	"sync"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/observability"
)

// Repository is the save/load contract shared by Store and Cached.
type Repository interface {
	Save(ctx context.Context, target string, bundle domain.ModelBundle) (string, error)
	Load(ctx context.Context, target string) (domain.ModelBundle, error)
}

// Cached wraps a Repository with an in-memory LRU of decoded bundles.
// Saving through the decorator replaces the cached entry; bundles written by
// another process are picked up only after eviction or restart.
type Cached struct {
	inner   Repository
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCached creates a cache decorator holding at most maxEntries bundles.
func NewCached(inner Repository, maxEntries int, metrics *observability.Metrics) *Cached {
	if maxEntries <= 0 {
		maxEntries = 16
	}
	return &Cached{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *Cached) Save(ctx context.Context, target string, bundle domain.ModelBundle) (string, error) {
	key, err := c.inner.Save(ctx, target, bundle)
	if err != nil {
		c.cache.delete(target)
		return "", err
	}
	c.cache.put(target, bundle)
	return key, nil
}

func (c *Cached) Load(ctx context.Context, target string) (domain.ModelBundle, error) {
	if b, ok := c.cache.get(target); ok {
		c.metrics.ModelCache.WithLabelValues("hit").Inc()
		return b, nil
	}
	c.metrics.ModelCache.WithLabelValues("miss").Inc()
	b, err := c.inner.Load(ctx, target)
	if err != nil {
		// Not-found is not cached so a later training run becomes visible.
		return b, err
	}
	c.cache.put(target, b)
	return b, nil
}

// lruCache is a simple thread-safe LRU cache of model bundles.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.ModelBundle
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.ModelBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.ModelBundle{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.ModelBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evict(c.tail)
	}
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.evict(e)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evict(e *entry) {
	if e == nil {
		return
	}
	delete(c.entries, e.key)
	c.unlink(e)
}
