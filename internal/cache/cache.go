package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional Redis-backed text cache for LLM byproducts
// (hypothesis drafts, rewritten questions, final answers). A nil *Cache
// is valid and turns every operation into a no-op, so callers never
// branch on whether caching is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. An empty addr disables caching (returns nil).
func New(addr, password string, db int, ttl time.Duration) *Cache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, ttl: ttl}
}

// Key derives a stable cache key from a namespace and the raw input text.
func Key(namespace, text string) string {
	sum := sha256.Sum256([]byte(text))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// GetText returns the cached value and whether it was present. Errors
// (including a down Redis) are treated as a miss.
func (c *Cache) GetText(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetText stores a value with the configured TTL. Failures are ignored;
// the cache is best-effort.
func (c *Cache) SetText(ctx context.Context, key, value string) {
	if c == nil {
		return
	}
	_ = c.client.Set(ctx, key, value, c.ttl).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
