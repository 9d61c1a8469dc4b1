package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache stores native/USD prices by key. A miss is (zero, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, price decimal.Decimal) error
}

// DefaultMemoryCacheSize bounds MemoryCache entries.
const DefaultMemoryCacheSize = 100_000

// MemoryCache is a bounded in-process cache. When full it is cleared.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]decimal.Decimal
}

// NewMemoryCache creates a MemoryCache holding at most max entries.
func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = DefaultMemoryCacheSize
	}
	return &MemoryCache{max: max, entries: make(map[string]decimal.Decimal)}
}

var _ Cache = (*MemoryCache)(nil)

// Get returns a cached price.
func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	return p, ok, nil
}

// Set stores a price.
func (c *MemoryCache) Set(_ context.Context, key string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.entries = make(map[string]decimal.Decimal)
	}
	c.entries[key] = price
	return nil
}

// RedisCache shares prices between processes. Historical prices never change,
// so the TTL only bounds memory.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisTTL is used when RedisCache gets a zero TTL.
const DefaultRedisTTL = 7 * 24 * time.Hour

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{client: client, prefix: "sandwich:price:", ttl: ttl}
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

var _ Cache = (*RedisCache)(nil)

// Get returns a cached price.
func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	s, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get price %s: %w", key, err)
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached price %s: %w", key, err)
	}
	return p, true, nil
}

// Set stores a price.
func (c *RedisCache) Set(ctx context.Context, key string, price decimal.Decimal) error {
	if err := c.client.Set(ctx, c.prefix+key, price.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("set price %s: %w", key, err)
	}
	return nil
}
