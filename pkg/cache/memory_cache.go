package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig contains configuration for the in-memory cache provider
type MemoryConfig struct {
	MaxItems        int           `yaml:"max_items" json:"max_items"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// DefaultMemoryConfig returns default in-memory cache configuration
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		MaxItems:        10000,
		CleanupInterval: 1 * time.Minute,
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache implements Cache with a TTL map and a background janitor
type MemoryCache struct {
	config  *MemoryConfig
	entries map[string]*memoryEntry
	mu      sync.RWMutex

	hits    int64
	misses  int64
	expired int64

	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryCache creates a new in-memory cache instance
func NewMemoryCache(config *MemoryConfig) *MemoryCache {
	if config == nil {
		config = DefaultMemoryConfig()
	}

	c := &MemoryCache{
		config:  config,
		entries: make(map[string]*memoryEntry),
		stopCh:  make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.janitor()
	}

	return c
}

// Get retrieves a value by key
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		c.mu.Lock()
		c.misses++
		if ok {
			c.expired++
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores a value with a TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := &memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// SetNX stores a value only if the key does not already exist
func (c *MemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && !entry.expired(time.Now()) {
		return false, nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := &memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return true, nil
}

// Delete removes one or more keys
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Expire resets the TTL of an existing key
func (c *MemoryCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(time.Now()) {
		return ErrCacheMiss
	}

	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	return nil
}

// GetStats returns cache performance statistics
func (c *MemoryCache) GetStats(ctx context.Context) (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &Stats{
		Provider: "memory",
		Hits:     c.hits,
		Misses:   c.misses,
		Keys:     int64(len(c.entries)),
		Expired:  c.expired,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRatio = float64(c.hits) / float64(total)
	}
	return stats, nil
}

// HealthCheck always succeeds for the in-memory provider
func (c *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Close stops the janitor
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

// janitor removes expired entries periodically
func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if entry.expired(now) {
					delete(c.entries, key)
					c.expired++
				}
			}
			c.mu.Unlock()
		}
	}
}
