package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/extractor"
)

const keyPrefix = "pharmatrace:extraction:"

// RedisCache is the shared tier.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type cachedExtraction struct {
	Data     *extractor.PatientData `json:"data"`
	CachedAt time.Time              `json:"cached_at"`
}

// NewRedisCache connects using cfg.RedisURL and verifies the connection.
func NewRedisCache(ctx context.Context, cfg domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, cfg.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached extraction. A corrupted entry is deleted and reported as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (*extractor.PatientData, bool, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get extraction cache: %w", err)
	}

	var cached cachedExtraction
	if err := json.Unmarshal(val, &cached); err != nil || cached.Data == nil {
		r.client.Del(ctx, keyPrefix+key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data *extractor.PatientData) error {
	payload, err := json.Marshal(cachedExtraction{Data: data, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal extraction cache data: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+key, payload, r.ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
