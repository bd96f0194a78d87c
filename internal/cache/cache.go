// 包 cache：弹窗数据缓存，Redis 优先，未配置时回退到进程内 LRU
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
)

// Cache：字节级键值缓存；Get 未命中或后端故障均返回 false
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
	Purge(ctx context.Context)
}

// New：client 非 nil 时使用 Redis，否则使用容量为 size 的 LRU
func New(client *redis.Client, size int, ttl time.Duration) Cache {
	if client != nil {
		return NewRedis(client, "metromap:", ttl)
	}
	return NewLRU(size, ttl)
}

// PopupKey：邮编弹窗缓存键
func PopupKey(zip string) string { return "popup:" + zip }

// GetJSON：读取并解码；解码失败按未命中处理
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var v T
	b, ok := c.Get(ctx, key)
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		logger.L().Warn("cache_decode_error", "key", key, "err", err)
		metrics.CacheMissesTotal.Inc()
		return v, false
	}
	metrics.CacheHitsTotal.Inc()
	return v, true
}

// SetJSON：编码并写入；编码失败只记录日志
func SetJSON(ctx context.Context, c Cache, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.L().Warn("cache_encode_error", "key", key, "err", err)
		return
	}
	c.Set(ctx, key, b)
}
