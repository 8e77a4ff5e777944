package player

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/metrics"
)

const defaultMaxEntries = 12

// cacheEntry owns exactly one handle. lastAccess is unix nanoseconds, stored
// atomically so concurrent Gets can bump it under the read lock.
type cacheEntry struct {
	handle     Handle
	lastAccess atomic.Int64
}

// Cache is a bounded map of video id to playback handle with
// least-recently-used eviction. Handles only become visible through Insert,
// after construction has completed, so nothing mid-build can be evicted.
//
// Mutations collect doomed handles under the lock and close them after
// releasing it: a slow native teardown never blocks other callers.
type Cache struct {
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[domain.VideoID]*cacheEntry
}

func NewCache(maxEntries int, logger *slog.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[domain.VideoID]*cacheEntry),
	}
}

// Get returns the cached handle for id, bumping its last-access time, or nil
// on a miss. It never blocks on construction; a miss stays a miss until the
// preparation path inserts a handle.
//
// The returned handle is a borrow, not a transfer: a concurrent Release,
// Clear or eviction may close it while the caller still holds it. Callers
// must tolerate a nil Content and failed reads on a handle closed underneath
// them.
func (c *Cache) Get(id domain.VideoID) Handle {
	c.mu.RLock()
	entry := c.entries[id]
	c.mu.RUnlock()

	if entry == nil {
		metrics.PlayerCacheMisses.Inc()
		return nil
	}
	entry.lastAccess.Store(c.now().UnixNano())
	metrics.PlayerCacheHits.Inc()
	return entry.handle
}

// Contains reports membership without touching the entry's last-access time.
func (c *Cache) Contains(id domain.VideoID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Insert stores handle under id and reports whether it was kept. An existing
// entry wins: the caller still owns a rejected handle and must close it.
// After a kept insert the cache evicts oldest-first until it is back within
// capacity.
func (c *Cache) Insert(id domain.VideoID, handle Handle) bool {
	if handle == nil {
		return false
	}

	c.mu.Lock()
	if _, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return false
	}
	entry := &cacheEntry{handle: handle}
	entry.lastAccess.Store(c.now().UnixNano())
	c.entries[id] = entry

	evicted := c.evictOverflowLocked()
	size := len(c.entries)
	c.mu.Unlock()

	for _, doomed := range evicted {
		c.closeHandle(doomed.id, doomed.handle)
		metrics.PlayerCacheEvictions.Inc()
	}
	metrics.PlayerCacheEntries.Set(float64(size))
	return true
}

// Release removes and closes the handle for id. Releasing an absent id is a
// no-op.
func (c *Cache) Release(id domain.VideoID) {
	c.mu.Lock()
	entry := c.entries[id]
	delete(c.entries, id)
	size := len(c.entries)
	c.mu.Unlock()

	if entry != nil {
		c.closeHandle(id, entry.handle)
	}
	metrics.PlayerCacheEntries.Set(float64(size))
}

// Clear removes and closes every handle. Used for session teardown and
// memory pressure.
func (c *Cache) Clear() {
	c.mu.Lock()
	doomed := make(map[domain.VideoID]Handle, len(c.entries))
	for id, entry := range c.entries {
		doomed[id] = entry.handle
	}
	c.entries = make(map[domain.VideoID]*cacheEntry)
	c.mu.Unlock()

	for id, handle := range doomed {
		c.closeHandle(id, handle)
	}
	metrics.PlayerCacheEntries.Set(0)
}

// Info returns the entry count and the sorted ids currently cached.
func (c *Cache) Info() (int, []domain.VideoID) {
	c.mu.RLock()
	ids := make([]domain.VideoID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return len(ids), ids
}

type evictedHandle struct {
	id     domain.VideoID
	handle Handle
}

// evictOverflowLocked removes oldest-access-first entries until the capacity
// invariant holds, ties broken by id order. Caller holds c.mu.
func (c *Cache) evictOverflowLocked() []evictedHandle {
	var evicted []evictedHandle
	for len(c.entries) > c.maxEntries {
		var oldestID domain.VideoID
		var oldest *cacheEntry
		for id, entry := range c.entries {
			if oldest == nil {
				oldestID, oldest = id, entry
				continue
			}
			at, ot := entry.lastAccess.Load(), oldest.lastAccess.Load()
			if at < ot || (at == ot && id < oldestID) {
				oldestID, oldest = id, entry
			}
		}
		delete(c.entries, oldestID)
		evicted = append(evicted, evictedHandle{id: oldestID, handle: oldest.handle})
	}
	return evicted
}

func (c *Cache) closeHandle(id domain.VideoID, handle Handle) {
	if err := handle.Close(); err != nil {
		c.logger.Warn("player handle close failed",
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
	}
}
