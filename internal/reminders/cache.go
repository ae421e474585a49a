package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matthewbaird/followup/internal/types"
)

// Cache holds the most recent worklist so readers are served the last pass
// instead of triggering a fresh scan.
type Cache interface {
	Get(ctx context.Context) (types.Worklist, bool, error)
	Put(ctx context.Context, wl types.Worklist) error
}

// MemoryCache implements Cache in process.
type MemoryCache struct {
	mu  sync.RWMutex
	wl  types.Worklist
	set bool
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (c *MemoryCache) Get(_ context.Context) (types.Worklist, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wl, c.set, nil
}

func (c *MemoryCache) Put(_ context.Context, wl types.Worklist) error {
	c.mu.Lock()
	c.wl, c.set = wl, true
	c.mu.Unlock()
	return nil
}

// RedisCache implements Cache on a Redis key, shared by every replica.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return newRedisCache(client, cfg.Key, cfg.TTL), nil
}

func newRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = "followup:worklist"
	}
	return &RedisCache{client: client, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (types.Worklist, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Worklist{}, false, nil
	}
	if err != nil {
		return types.Worklist{}, false, fmt.Errorf("reading worklist: %w", err)
	}
	var wl types.Worklist
	if err := json.Unmarshal(data, &wl); err != nil {
		return types.Worklist{}, false, fmt.Errorf("decoding worklist: %w", err)
	}
	return wl, true, nil
}

func (c *RedisCache) Put(ctx context.Context, wl types.Worklist) error {
	data, err := json.Marshal(wl)
	if err != nil {
		return fmt.Errorf("encoding worklist: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing worklist: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.client.Close() }
