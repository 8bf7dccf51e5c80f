package secrets

import (
	"context"
	"sync"
	"time"
)

type cacheItem struct {
	value      map[string]string
	expiration time.Time
}

// CachedProvider memoizes another Provider's answers for a TTL.
type CachedProvider struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	data map[string]cacheItem
}

// NewCachedProvider wraps next with a TTL cache.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next: next,
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]cacheItem),
	}
}

// GetSecret serves from cache while fresh; errors are never cached.
func (c *CachedProvider) GetSecret(ctx context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if ok && c.now().Before(item.expiration) {
		return copyMap(item.value), nil
	}

	value, err := c.next.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data[key] = cacheItem{value: copyMap(value), expiration: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}

// Bust drops key, e.g. after rotation.
func (c *CachedProvider) Bust(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
