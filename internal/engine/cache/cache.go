// Package cache provides a bounded least-recently-used store of decoded
// file segments, keyed by chunk-aligned byte offset.
//
// Recency order and membership live in one structure (a doubly-linked
// list plus an index into its elements) guarded by a single mutex, so
// they cannot drift apart.
package cache

import (
	"container/list"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dshills/streamview/internal/engine/segment"
)

// DefaultCapacity is the default maximum number of cached segments.
const DefaultCapacity = 10

// SegmentCache is a bounded LRU cache of TextSegments.
// It is owned by a single streaming engine instance and is safe for
// concurrent use.
type SegmentCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recently used
	index    map[uint64]*list.Element // aligned offset -> element in order

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry struct {
	key uint64
	seg *segment.TextSegment
}

// New creates a SegmentCache with the given capacity.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *SegmentCache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &SegmentCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint64]*list.Element, capacity),
	}
}

// Get returns the segment cached at the aligned offset, if any.
// A hit refreshes the segment's LastAccessed time and moves it to the
// most-recently-used position.
func (c *SegmentCache) Get(key uint64) (*segment.TextSegment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	c.order.MoveToFront(el)
	e := el.Value.(*entry)
	e.seg.LastAccessed = time.Now()
	return e.seg, true
}

// Put inserts a segment at the aligned offset, evicting the
// least-recently-used entry if the cache is at capacity.
// An existing entry at the same offset is replaced, not mutated.
func (c *SegmentCache) Put(key uint64, seg *segment.TextSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seg.LastAccessed = time.Now()

	if el, ok := c.index[key]; ok {
		el.Value = &entry{key: key, seg: seg}
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}
	c.index[key] = c.order.PushFront(&entry{key: key, seg: seg})
}

// evictOldestLocked removes the least-recently-used entry.
// Caller must hold c.mu.
func (c *SegmentCache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.index, oldest.Value.(*entry).key)
	c.evictions++
}

// Len returns the number of cached segments.
func (c *SegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured maximum entry count.
func (c *SegmentCache) Capacity() int {
	return c.capacity
}

// Keys returns the cached offsets from most to least recently used.
func (c *SegmentCache) Keys() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]uint64, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Clear removes every entry.
func (c *SegmentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[uint64]*list.Element, c.capacity)
}

// ReleaseMemory empties the cache and returns freed pages to the OS.
// Called under memory pressure; caching is best-effort and never blocks
// correctness, so callers keep their segment regardless.
func (c *SegmentCache) ReleaseMemory() {
	c.Clear()
	debug.FreeOSMemory()
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	Capacity  int
}

// Stats returns a snapshot of the cache counters.
func (c *SegmentCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}
