package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. The windowed
// counters back rolling velocity aggregates for frequency rules.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value. The window TTL is set when the counter is
	// first created.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCounter reads a windowed counter without incrementing it.
	// Returns 0 for an absent or expired counter.
	GetCounter(ctx context.Context, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type" validate:"oneof=memory redis"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Two-phase settings: check local LRU first, then Redis.
	EnableTwoPhase bool `yaml:"enable_two_phase"`
}
