package cache

import (
	"sync"
	"time"

	"github.com/tentens-tech/rental-deposit/internal/infrastructure/metrics"
)

const DefaultCleanupInterval = time.Second

// Cache is a size-bounded TTL cache. When full, the entry closest to
// expiry is evicted to make room.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*CacheItem[V]
	maxSize int
	done    chan struct{}
	once    sync.Once
}

type CacheItem[V any] struct {
	Value      V
	Expiration time.Time
}

func New[K comparable, V any](size int) *Cache[K, V] {
	cache := &Cache[K, V]{
		items:   make(map[K]*CacheItem[V]),
		maxSize: size,
		done:    make(chan struct{}),
	}

	go cache.cleanup(DefaultCleanupInterval)

	return cache
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLocked(len(c.items) - c.maxSize + 1)
	}

	c.items[key] = &CacheItem[V]{
		Value:      value,
		Expiration: time.Now().Add(ttl),
	}

	metrics.CacheOperations.WithLabelValues("set", "success").Inc()
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
		return zero, false
	}

	if time.Now().After(item.Expiration) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		metrics.CacheOperations.WithLabelValues("get", "expired").Inc()
		return zero, false
	}

	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return item.Value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	metrics.CacheOperations.WithLabelValues("delete", "success").Inc()
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the background cleanup.
func (c *Cache[K, V]) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Cache[K, V]) evictLocked(n int) {
	for ; n > 0 && len(c.items) > 0; n-- {
		var victim K
		var earliest time.Time
		first := true
		for key, item := range c.items {
			if first || item.Expiration.Before(earliest) {
				victim, earliest, first = key, item.Expiration, false
			}
		}
		delete(c.items, victim)
		metrics.CacheOperations.WithLabelValues("evict", "success").Inc()
	}
}

func (c *Cache[K, V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.Expiration) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
