// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"hash/fnv"
	"sync"
	"time"
)

// shardCount is the number of independent cache shards. Writers for
// different keys rarely contend; a single broad lock would serialize
// every concurrent Load.
const shardCount = 16

type (
	// cacheKey identifies one cached configuration.
	cacheKey struct {
		path string
		env  string
	}

	// cacheEntry is one cached configuration plus the freshness inputs
	// it was cached under.
	cacheEntry struct {
		cfg      *Configuration
		loadedAt time.Time
		mtime    time.Time
	}

	cacheShard struct {
		mu      sync.RWMutex
		entries map[cacheKey]*cacheEntry
	}

	shardedCache struct {
		shards [shardCount]*cacheShard
	}
)

func newShardedCache() *shardedCache {
	c := &shardedCache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[cacheKey]*cacheEntry)}
	}
	return c
}

func (c *shardedCache) shard(key cacheKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key.path))
	h.Write([]byte{0})
	h.Write([]byte(key.env))
	return c.shards[h.Sum32()%shardCount]
}

func (c *shardedCache) get(key cacheKey) (*cacheEntry, bool) {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (c *shardedCache) put(key cacheKey, e *cacheEntry) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (c *shardedCache) delete(key cacheKey) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (c *shardedCache) clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[cacheKey]*cacheEntry)
		s.mu.Unlock()
	}
}
