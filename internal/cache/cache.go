// Package cache is a read-through cache for project listings backed by redis.
// Entries are never authoritative: every lookup error is a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freelance/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const generationKey = "projects:generation"

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Cache stores listings under projects:{generation}:{user}:{query}. Bumping
// the generation orphans every stored listing at once; orphans expire by TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, log: log.Named("cache")}
}

func key(generation int64, userId, query string) string {
	return fmt.Sprintf("projects:%d:%s:%s", generation, userId, query)
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get decodes the listing cached for userId and query into dst and reports
// whether it was found. The returned slot is where a freshly loaded listing
// should be stored with Set; it pins the generation seen before the load, so
// a write that lands in between makes the stored listing unreachable.
func (c *Cache) Get(ctx context.Context, userId, query string, dst any) (slot string, hit bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Warn("cache generation lookup failed", zap.Error(err))
		return "", false
	}
	slot = key(gen, userId, query)

	data, err := c.rdb.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return slot, false
	} else if err != nil {
		c.log.Warn("cache lookup failed", zap.Error(err))
		return "", false
	}

	if err = json.Unmarshal(data, dst); err != nil {
		c.log.Warn("cache entry undecodable", zap.Error(err))
		return slot, false
	}
	return slot, true
}

// Set stores v in a slot returned by Get. An empty slot is ignored.
func (c *Cache) Set(ctx context.Context, slot string, v any) {
	if len(slot) == 0 {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache entry unencodable", zap.Error(err))
		return
	}

	if err = c.rdb.Set(ctx, slot, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache store failed", zap.Error(err))
	}
}

// Invalidate drops every cached listing.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		c.log.Error("cache invalidation failed", zap.Error(err))
	}
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, string, any) (string, bool) { return "", false }
func (Nop) Set(context.Context, string, any)                        {}
func (Nop) Invalidate(context.Context)                              {}
