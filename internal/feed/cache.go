package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores tag lists by repository
type Cache interface {
	// Get returns the cached tags and whether there was an entry
	Get(ctx context.Context, repo string) ([]string, bool, error)
	Set(ctx context.Context, repo string, tags []string) error
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]string, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []string) error { return nil }

const tagKeyPrefix = "release-watch:tags:"

// DefaultCacheTTL bounds how stale a cached tag list may be
const DefaultCacheTTL = 10 * time.Minute

// RedisCache keeps tag lists in Redis as JSON arrays with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisCacheFromURL connects to a redis:// URL and checks the connection
func NewRedisCacheFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisCache(client, ttl), nil
}

// Ping checks that Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func tagKey(repo string) string {
	return tagKeyPrefix + strings.ToLower(repo)
}

// Get returns the cached tags of repo
func (c *RedisCache) Get(ctx context.Context, repo string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, tagKey(repo)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, false, fmt.Errorf("decoding cached tags: %w", err)
	}
	return tags, true, nil
}

// Set stores the tags of repo
func (c *RedisCache) Set(ctx context.Context, repo string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tagKey(repo), raw, c.ttl).Err()
}
