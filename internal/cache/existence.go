// Package cache provides a Redis-backed read-through cache in front of the
// vector store's chunking idempotency gate, avoiding a database round trip
// on every re-entry into a step for videos already fully chunked.
package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ytreport/internal/config"
	"ytreport/internal/model"
	"ytreport/internal/vectorstore"
)

// ExistenceCache wraps a vectorstore.Store's ExistsByChunkTypeAndID with a
// TTL'd boolean cache. Cache misses fall through to the store and populate
// the cache; the store remains the source of truth, never the cache alone.
type ExistenceCache struct {
	client *redis.Client
	store  vectorstore.Store
	ttl    time.Duration
}

// NewExistenceCache constructs an ExistenceCache, pinging the Redis server
// to validate the connection before returning.
func NewExistenceCache(cfg config.CacheConfig, store vectorstore.Store) (*ExistenceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ExistenceCache{client: client, store: store, ttl: ttl}, nil
}

func cacheKey(chunkType model.ChunkType, sourceID int64) string {
	return fmt.Sprintf("ytreport:chunk-exists:%s:%d", chunkType, sourceID)
}

// Exists reports whether a chunk of chunkType exists for sourceID, checking
// the cache first and falling through to the store on a miss.
func (c *ExistenceCache) Exists(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error) {
	key := cacheKey(chunkType, sourceID)
	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if err != redis.Nil {
		// Redis unavailable: degrade to the store rather than fail the
		// caller, since the cache is strictly an optimization.
		return c.store.ExistsByChunkTypeAndID(ctx, chunkType, sourceID)
	}

	exists, err := c.store.ExistsByChunkTypeAndID(ctx, chunkType, sourceID)
	if err != nil {
		return false, err
	}
	val = "0"
	if exists {
		val = "1"
	}
	_ = c.client.Set(ctx, key, val, c.ttl).Err()
	return exists, nil
}

// Invalidate removes a cached entry so the next Exists call reflects the
// store. No caller in this module invokes it, so a cached result stands
// until its TTL expires.
func (c *ExistenceCache) Invalidate(ctx context.Context, chunkType model.ChunkType, sourceID int64) error {
	return c.client.Del(ctx, cacheKey(chunkType, sourceID)).Err()
}

// Close releases the underlying Redis connection.
func (c *ExistenceCache) Close() error {
	return c.client.Close()
}

// cachedStore decorates a vectorstore.Store so ExistsByChunkTypeAndID goes
// through an ExistenceCache while every other method passes straight
// through to the underlying store unchanged.
type cachedStore struct {
	vectorstore.Store
	existence *ExistenceCache
}

// WrapStore returns a vectorstore.Store that serves ExistsByChunkTypeAndID
// from existence, falling through to store on a miss. Pass the result to
// chunking.New so the engine's idempotency gate benefits from the cache
// without either package depending on the other.
func WrapStore(store vectorstore.Store, existence *ExistenceCache) vectorstore.Store {
	return &cachedStore{Store: store, existence: existence}
}

func (s *cachedStore) ExistsByChunkTypeAndID(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error) {
	return s.existence.Exists(ctx, chunkType, sourceID)
}
