package segment

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srediag/shmvars/pkg/result"
)

// DefaultCacheCapacity matches the facade's default bound on open handles.
const DefaultCacheCapacity = 5

// Cache is a process-local, bounded LRU of open segment handles. Each
// process has its own independent Cache; nothing about it crosses the
// process boundary. Eviction closes the least-recently-touched handle
// locally and never destroys the backing segment.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	manager   *Manager
	items     map[string]*list.Element
	evictList *list.List

	// OnEvict, when set, observes capacity evictions (not explicit
	// closes). OnHit and OnMiss observe GetOrOpen lookups.
	OnEvict func(name string)
	OnHit   func(name string)
	OnMiss  func(name string)

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	name   string
	handle *Handle
}

// NewCache returns an empty Cache bounded to capacity handles.
func NewCache(manager *Manager, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity:  capacity,
		manager:   manager,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// GetOrOpen returns the cached handle for name, refreshing its recency,
// or opens the segment and inserts the new handle, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *Cache) GetOrOpen(name string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[name]; ok {
		c.hits.Add(1)
		if c.OnHit != nil {
			c.OnHit(name)
		}
		c.evictList.MoveToFront(ent)
		return ent.Value.(*cacheEntry).handle, nil
	}
	c.misses.Add(1)
	if c.OnMiss != nil {
		c.OnMiss(name)
	}
	h, err := c.manager.Open(name)
	if err != nil {
		return nil, err
	}
	c.insertLocked(name, h)
	return h, nil
}

// Put registers a freshly created handle, evicting if needed. An entry
// already cached under the name is replaced and closed locally.
func (c *Cache) Put(name string, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[name]; ok {
		old := ent.Value.(*cacheEntry).handle
		if old != h {
			_ = c.manager.Close(old, true)
		}
		ent.Value.(*cacheEntry).handle = h
		c.evictList.MoveToFront(ent)
		return
	}
	c.insertLocked(name, h)
}

func (c *Cache) insertLocked(name string, h *Handle) {
	for c.evictList.Len() >= c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*cacheEntry)
		c.evictList.Remove(back)
		delete(c.items, victim.name)
		_ = c.manager.Close(victim.handle, true)
		c.evictions.Add(1)
		if c.OnEvict != nil {
			c.OnEvict(victim.name)
		}
	}
	c.items[name] = c.evictList.PushFront(&cacheEntry{name: name, handle: h})
}

// Close removes the entry for name immediately, bypassing recency
// ordering, and closes its handle in the requested mode. An uncached name
// reports ErrNotFound.
func (c *Cache) Close(name string, closeOnly bool) error {
	c.mu.Lock()
	ent, ok := c.items[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("segment %q not cached: %w", name, result.ErrNotFound)
	}
	entry := ent.Value.(*cacheEntry)
	c.evictList.Remove(ent)
	delete(c.items, name)
	c.mu.Unlock()
	return c.manager.Close(entry.handle, closeOnly)
}

// CloseAll detaches every cached handle (close-only, destroying nothing)
// and empties the cache. Used at facade teardown.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	entries := make([]*cacheEntry, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*cacheEntry))
	}
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.mu.Unlock()

	var first error
	for _, entry := range entries {
		if err := c.manager.Close(entry.handle, true); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len returns the number of cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Contains reports whether name is cached, without touching recency.
func (c *Cache) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[name]
	return ok
}

// Stats returns hit/miss/eviction counters.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}
