package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cinemind/internal/ai"
	"cinemind/internal/logger"
	"cinemind/internal/vectorstore"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	embeddingCachePrefix     = "cinemind:qemb:"
	defaultEmbeddingCacheTTL = 24 * time.Hour
	defaultEmbeddingCacheLen = 1024
)

// EmbeddingCache keeps query vectors in a process-local LRU and, when a Redis
// client is given, in Redis so that they survive restarts and are shared
// between API replicas. Cache errors are logged and treated as misses.
type EmbeddingCache struct {
	rdb   redis.UniversalClient
	local *expirable.LRU[string, []float32]
	ttl   time.Duration
	log   *slog.Logger
}

var _ ai.QueryCache = (*EmbeddingCache)(nil)

func NewEmbeddingCache(rdb redis.UniversalClient, size int, ttl time.Duration) *EmbeddingCache {
	if size <= 0 {
		size = defaultEmbeddingCacheLen
	}
	if ttl <= 0 {
		ttl = defaultEmbeddingCacheTTL
	}
	return &EmbeddingCache{
		rdb:   rdb,
		local: expirable.NewLRU[string, []float32](size, nil, ttl),
		ttl:   ttl,
		log:   logger.With("component", "embedding_cache"),
	}
}

func (c *EmbeddingCache) GetVector(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.local.Get(key); ok {
		return vec, true
	}
	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, embeddingCachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache read failed", "error", err)
		}
		return nil, false
	}
	vec := vectorstore.DecodeVector(data)
	if len(vec) == 0 {
		return nil, false
	}
	c.local.Add(key, vec)
	return vec, true
}

func (c *EmbeddingCache) SetVector(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.local.Add(key, vec)
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, embeddingCachePrefix+key, vectorstore.EncodeVector(vec), c.ttl).Err(); err != nil {
		c.log.Warn("redis cache write failed", "error", err)
	}
}

// Len is the number of vectors held locally.
func (c *EmbeddingCache) Len() int { return c.local.Len() }

// Purge drops every local entry. Redis entries expire on their own.
func (c *EmbeddingCache) Purge() { c.local.Purge() }
