// Package cache provides the shared key-value cache used for the latest
// metrics snapshot and for alert rate-limit state. Two providers ship:
// Redis for production and an in-memory cache for tests and single-node
// deployments.
package cache

import (
	"context"
	"errors"
	"time"
)

// Common cache errors
var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrInvalidKey = errors.New("invalid cache key")
)

// Cache defines the key-value cache interface
type Cache interface {
	// Get retrieves a value by key; returns ErrCacheMiss when absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only if the key does not exist yet.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes one or more keys
	Delete(ctx context.Context, keys ...string) error

	// Expire resets the TTL of an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// GetStats returns cache performance statistics
	GetStats(ctx context.Context) (*Stats, error)

	// HealthCheck verifies the cache is reachable
	HealthCheck(ctx context.Context) error

	// Close releases provider resources
	Close() error
}

// Stats contains cache performance statistics
type Stats struct {
	Provider string  `json:"provider"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
	Keys     int64   `json:"keys"`
	Expired  int64   `json:"expired"`
}

// Config contains common configuration for cache providers
type Config struct {
	Provider   string        `yaml:"provider" json:"provider"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	KeyPrefix  string        `yaml:"key_prefix" json:"key_prefix"`

	Redis  *RedisConfig  `yaml:"redis,omitempty" json:"redis,omitempty"`
	Memory *MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:   "memory",
		DefaultTTL: 5 * time.Minute,
		KeyPrefix:  "travel:",
		Redis:      DefaultRedisConfig(),
		Memory:     DefaultMemoryConfig(),
	}
}

// New creates a cache for the configured provider
func New(config *Config) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case "redis":
		return NewRedisCache(config.Redis)
	default:
		return NewMemoryCache(config.Memory), nil
	}
}
