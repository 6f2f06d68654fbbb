package content

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps recently resolved records in memory. A nil *Cache is a
// valid, disabled cache.
//
// Every Remove and Purge advances a generation. A record read from the
// repository is cached only if the generation is unchanged since before the
// read, so an invalidation racing the read always wins.
type Cache struct {
	mu  sync.Mutex
	gen uint64
	lru *expirable.LRU[string, *Record]
}

// NewCache returns a cache holding up to size records for ttl each, or nil
// when size is not positive.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, *Record](size, nil, ttl)}
}

// Get returns the cached record for code if it is still live at now.
func (c *Cache) Get(code string, now time.Time) (*Record, bool) {
	if c == nil {
		return nil, false
	}
	rec, ok := c.lru.Get(code)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	if !rec.Live(now) {
		c.lru.Remove(code)
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return rec, true
}

// Generation returns the token to pass to Set for a read starting now.
func (c *Cache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Set caches rec unless Remove or Purge ran after gen was taken. It reports
// whether the record was cached.
func (c *Cache) Set(rec *Record, gen uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(rec.Code, rec)
	return true
}

// Remove drops the entry for code.
func (c *Cache) Remove(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Remove(code)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
