package tenants

import (
	"sync"
	"time"
)

// Cache — процессный кэш снапшота тенантов. Last-writer-wins, TTL опционален (0 = до инвалидации).
type Cache struct {
	mu       sync.Mutex
	snap     *Snapshot
	storedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

func (c *Cache) Get() (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.storedAt) > c.ttl {
		c.snap = nil
		return nil, false
	}
	return c.snap, true
}

func (c *Cache) Set(s *Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.storedAt = c.now()
	c.mu.Unlock()
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}
