package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

const keyPrefix = "fiscal:acq:"

// kv is the part of redis.Cmdable the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisTextCache shares acquired text between daemon replicas.
type RedisTextCache struct {
	client kv
	ttl    time.Duration
}

// NewRedisTextCache wraps client. ttl <= 0 stores entries without expiry.
func NewRedisTextCache(client redis.Cmdable, ttl time.Duration) *RedisTextCache {
	return &RedisTextCache{client: client, ttl: ttl}
}

// NewRedisClient dials Redis and pings it. It returns nil, nil when no
// address is configured.
func NewRedisClient(ctx context.Context, cfg common.CacheConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisTextCache) Get(ctx context.Context, key string) (entity.AcquiredText, bool, error) {
	b, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.AcquiredText{}, false, nil
	}
	if err != nil {
		return entity.AcquiredText{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var acq entity.AcquiredText
	if err := json.Unmarshal(b, &acq); err != nil {
		return entity.AcquiredText{}, false, fmt.Errorf("decode cached text %s: %w", key, err)
	}
	return acq, true, nil
}

func (c *RedisTextCache) Set(ctx context.Context, key string, acq entity.AcquiredText) error {
	b, err := json.Marshal(acq)
	if err != nil {
		return fmt.Errorf("encode cached text %s: %w", key, err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, keyPrefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
