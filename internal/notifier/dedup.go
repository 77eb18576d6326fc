package notifier

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDeduper remembers handled keys in redis for ttl. When redis is
// unavailable every event is processed.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisDeduper {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, log: log}
}

func (d *RedisDeduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		d.log.Warn("redis dedup check failed, allowing processing", zap.String("key", key), zap.Error(err))
		return true
	}
	if !ok {
		d.log.Info("skipped duplicated event", zap.String("key", key))
	}
	return ok
}

func (d *RedisDeduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, "dedup:"+key).Err(); err != nil {
		d.log.Warn("redis dedup release failed", zap.String("key", key), zap.Error(err))
	}
}

// NopDeduper lets every event through. Inserts stay idempotent through the
// notifications unique key.
type NopDeduper struct{}

func (NopDeduper) AcquireOnce(context.Context, string) bool { return true }
func (NopDeduper) Release(context.Context, string)          {}
