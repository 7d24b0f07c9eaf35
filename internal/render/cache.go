package render

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache keeps rendered images in memory for a fixed TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewCache creates a cache whose entries expire after ttl. A nil clock uses
// the wall clock.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached image for key if it has not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores an image under key.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{data: data, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Purge drops every entry. Called after the season table is rebuilt.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
