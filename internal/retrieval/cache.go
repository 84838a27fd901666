package retrieval

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheEntry is a pure memoization of the retrieval step, never of the whole
// pipeline. Classification is cheap and always recomputed, so it is not part
// of the entry.
type CacheEntry struct {
	Context      string
	SourceIDs    []string
	SourceImages []SourceImageGroup
}

// Cache memoizes retrieval results per normalized-query hash with a TTL.
// Concurrent writers to the same key may race; last writer wins, which is
// acceptable because the value is a pure function of the key.
type Cache struct {
	lru *expirable.LRU[string, CacheEntry]
}

func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{lru: expirable.NewLRU[string, CacheEntry](size, nil, ttl)}
}

func (c *Cache) Get(key string) (CacheEntry, bool) {
	if c == nil {
		return CacheEntry{}, false
	}
	return c.lru.Get(key)
}

func (c *Cache) Set(key string, entry CacheEntry) {
	if c == nil {
		return
	}
	c.lru.Add(key, entry)
}

func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
