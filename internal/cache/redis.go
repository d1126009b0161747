// Package cache stores JSON values in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contractlens/backend/internal/config"
)

const keyPrefix = "contractlens:"

// Cache wraps a Redis client.
type Cache struct {
	Db *redis.Client
}

// InitServer connects to Redis and verifies the connection.
func InitServer(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Get decodes the value at key into result. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set stores value as JSON with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}
	return c.Db.Set(ctx, keyPrefix+key, jsonData, expiration).Err()
}

// Invalidate deletes keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	return c.Db.Del(ctx, full...).Err()
}

// InvalidatePrefix deletes every key under prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := c.Db.Scan(ctx, 0, keyPrefix+prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache.InvalidatePrefix: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	return c.Db.Del(ctx, batch...).Err()
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// SearchKey builds the key for a cached marketplace search. Queries are
// normalized and hashed so arbitrary input stays a safe key.
func SearchKey(integrationID, query, productType string, maxResults int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", norm, strings.ToLower(productType), maxResults)))
	return SearchPrefix(integrationID) + hex.EncodeToString(sum[:16])
}

// SearchPrefix is the key prefix of all cached searches for an integration.
func SearchPrefix(integrationID string) string {
	return "search:" + integrationID + ":"
}
