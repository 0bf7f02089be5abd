package cache

import "time"

// LayeredCache reads from a fast layer first and falls back to a durable one
type LayeredCache struct {
	fast    Cache
	durable Cache
}

// NewLayeredCache creates a layered cache (typically memory over disk or redis)
func NewLayeredCache(fast, durable Cache) *LayeredCache {
	return &LayeredCache{fast: fast, durable: durable}
}

// Get checks the fast layer first and promotes durable hits
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.fast.Get(key); found {
		return val, true
	}

	if val, found := c.durable.Get(key); found {
		_ = c.fast.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.fast.Set(key, value, ttl); err != nil {
		return err
	}
	return c.durable.Set(key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	_ = c.fast.Delete(key)
	return c.durable.Delete(key)
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear() error {
	_ = c.fast.Clear()
	return c.durable.Clear()
}
