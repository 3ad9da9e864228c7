// Package reportcache caches assembled intelligence reports in Redis so
// repeated requests for the same query and source set skip the fan-out
// entirely.
package reportcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbaxter/synapse/internal/types"
)

// keyPrefix namespaces all cache keys in a shared Redis.
const keyPrefix = "synapse:report:"

// DefaultTTL is how long a cached report stays valid.
const DefaultTTL = 10 * time.Minute

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{Addr: "localhost:6379", TTL: DefaultTTL}
}

// Cache is a namespaced JSON report cache backed by Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache from config.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, ttl: ttl}
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// RequestKey derives the cache key for a query against a source set.
// Source order does not matter.
func RequestKey(query string, sources []string) string {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)
	return types.HashContent(strings.ToLower(strings.TrimSpace(query)) + "|" + strings.Join(sorted, ","))
}

// Get fetches a cached report. The second return is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*types.IntelligenceReport, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var report types.IntelligenceReport
	if err := json.Unmarshal(data, &report); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.client.Del(ctx, keyPrefix+key)
		return nil, false, nil
	}
	return &report, true, nil
}

// Put stores a report under the request key with the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, report *types.IntelligenceReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Invalidate removes a cached report.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate report: %w", err)
	}
	return nil
}

// Clear removes every cached report in the namespace.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan failed: %w", err)
	}
	return removed, nil
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
