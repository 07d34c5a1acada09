package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/quarry/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client used as a shared artifact cache across
// registry processes. Values are stored as raw bytes.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache creates a new cache instance and checks the connection
func NewCache(cfg *config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheWithClient(client, cfg.TTL), nil
}

// NewCacheWithClient wraps an existing client
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "quarry:artifact:"}
}

// GetBytes returns the cached value and whether it was present
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return data, true, nil
}

// SetBytes stores a value with the configured expiration
func (c *Cache) SetBytes(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
