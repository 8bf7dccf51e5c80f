package rates

import (
	"sync"
	"time"

	"github.com/seabucks/dealer"
)

// Cache holds the most recent rate per currency. It only admits the currencies it was
// created with, so its size is bounded by the registry.
type Cache struct {
	ttl     time.Duration
	allowed map[string]struct{}

	mu    sync.RWMutex
	items map[string]dealer.ExchangeRate
}

// NewCache creates a cache admitting the given currency codes.
func NewCache(ttl time.Duration, codes []string) *Cache {
	allowed := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		allowed[code] = struct{}{}
	}
	return &Cache{
		ttl:     ttl,
		allowed: allowed,
		items:   make(map[string]dealer.ExchangeRate, len(codes)),
	}
}

// Get returns the cached rate for code if it is younger than the TTL at now.
// The returned source carries the " (cached)" annotation.
func (c *Cache) Get(code string, now time.Time) (dealer.ExchangeRate, bool) {
	c.mu.RLock()
	r, ok := c.items[code]
	c.mu.RUnlock()

	if !ok || now.Sub(r.Timestamp) >= c.ttl {
		return dealer.ExchangeRate{}, false
	}
	r.Source += cachedSuffix
	return r, true
}

// Put stores r. Last writer wins; currencies outside the admitted set are ignored.
func (c *Cache) Put(r dealer.ExchangeRate) {
	if _, ok := c.allowed[r.Currency]; !ok {
		return
	}
	c.mu.Lock()
	c.items[r.Currency] = r
	c.mu.Unlock()
}

// Len returns the number of cached currencies.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
