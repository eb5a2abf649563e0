// Package cache keeps extraction results keyed by the SHA-256 of the uploaded PDF so a
// re-uploaded record is not sent to the model twice. Tier 1 is an in-process expirable LRU,
// tier 2 is Redis when configured.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/extractor"
)

// Key returns the cache key for a document.
func Key(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

// ExtractionCache is the tiered cache used by intake.
type ExtractionCache struct {
	memory *MemoryCache
	redis  *RedisCache
	logger *logrus.Logger
}

// NewExtractionCache combines the tiers. redis may be nil.
func NewExtractionCache(logger *logrus.Logger, memory *MemoryCache, redis *RedisCache) *ExtractionCache {
	return &ExtractionCache{memory: memory, redis: redis, logger: logger}
}

// Get looks up tier 1 then tier 2, promoting tier 2 hits.
func (c *ExtractionCache) Get(ctx context.Context, key string) (*extractor.PatientData, bool) {
	if c == nil {
		return nil, false
	}
	if data, ok := c.memory.Get(key); ok {
		return data, true
	}
	if c.redis == nil {
		return nil, false
	}

	data, ok, err := c.redis.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache read failed")
		return nil, false
	}
	if ok {
		c.memory.Set(key, data)
	}
	return data, ok
}

// Set writes both tiers. Redis failures are logged and otherwise ignored.
func (c *ExtractionCache) Set(ctx context.Context, key string, data *extractor.PatientData) {
	if c == nil {
		return
	}
	c.memory.Set(key, data)
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, data); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache write failed")
	}
}

// Close releases the Redis client when present.
func (c *ExtractionCache) Close() error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
