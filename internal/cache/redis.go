package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"metro-price-map/internal/logger"
)

// Redis：基于 go-redis 的缓存，所有键带统一前缀
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.rdb.Get(ctx, r.prefix+k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("redis_get_error", "key", k, "err", err)
		}
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(ctx context.Context, k string, v []byte) {
	if err := r.rdb.Set(ctx, r.prefix+k, v, r.ttl).Err(); err != nil {
		logger.L().Warn("redis_set_error", "key", k, "err", err)
	}
}

// Purge：按前缀 SCAN 并删除
func (r *Redis) Purge(ctx context.Context) {
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.L().Warn("redis_scan_error", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.L().Warn("redis_purge_error", "err", err)
		return
	}
	logger.L().Debug("redis_purged", "keys", len(keys))
}
