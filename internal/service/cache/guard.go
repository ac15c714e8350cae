// internal/service/cache/guard.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"flashmart/internal/pkg/lock"
	"flashmart/internal/pkg/logger"
	"flashmart/internal/pkg/redis"
)

// Loader 是缓存未命中时的回源函数。加载失败的结果绝不会写入缓存。
type Loader func(ctx context.Context) (string, error)

// Guard 保护热点读路径不被缓存击穿压垮，提供两种互补策略：
//
//  1. 加锁回源（single-flight）：未命中时，进程内先用 singleflight 合并
//     并发请求，跨实例再用分布式锁选出唯一的回源者；落选者等待一个
//     短暂的固定间隔后重查缓存，仍然没有就自己直接回源（有界兜底，
//     避免无限等待）。
//  2. 概率性提前刷新：命中时检查剩余 TTL，低于阈值比例时以小概率
//     触发异步刷新，把大量几乎同时到期的刷新压力摊开。
type Guard struct {
	redisClient *redis.Client
	locker      lock.Locker
	group       singleflight.Group

	waitInterval       time.Duration // 落选者重查缓存前的等待时间
	lockTTL            time.Duration // 回源锁的租约时长
	refreshThreshold   float64       // 剩余 TTL 低于原始 TTL 的该比例时考虑提前刷新
	refreshProbability float64       // 提前刷新的触发概率

	randFloat func() float64
}

// Options 控制守卫的各项参数，零值字段使用默认值。
type Options struct {
	WaitInterval       time.Duration
	LockTTL            time.Duration
	RefreshThreshold   float64
	RefreshProbability float64
}

// NewGuard 创建缓存守卫。
func NewGuard(redisClient *redis.Client, locker lock.Locker, opts Options) *Guard {
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 100 * time.Millisecond
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 3 * time.Second
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = 0.1
	}
	if opts.RefreshProbability <= 0 {
		opts.RefreshProbability = 0.1
	}
	return &Guard{
		redisClient:        redisClient,
		locker:             locker,
		waitInterval:       opts.WaitInterval,
		lockTTL:            opts.LockTTL,
		refreshThreshold:   opts.RefreshThreshold,
		refreshProbability: opts.RefreshProbability,
		randFloat:          rand.Float64,
	}
}

func cacheKey(cacheName, key string) string {
	return fmt.Sprintf("cache:%s:%s", cacheName, key)
}

// GetOrLoad 读取缓存，未命中时通过加锁回源策略加载并填充。
// ttl 是缓存条目的完整存活时长，同一 (cacheName, key) 的调用方应传相同值。
func (g *Guard) GetOrLoad(ctx context.Context, cacheName, key string, ttl time.Duration, loader Loader) (string, error) {
	rdb := g.redisClient.GetClient()
	full := cacheKey(cacheName, key)

	val, err := rdb.Get(ctx, full).Result()
	if err == nil {
		cacheHits.Inc()
		g.maybeRefreshAsync(cacheName, key, ttl, loader)
		return val, nil
	}
	if !errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("cache read failed: %w", err)
	}
	cacheMisses.Inc()

	// 进程内合并：同一个 key 的并发未命中只触发一次 loadWithLock
	v, err, _ := g.group.Do(full, func() (interface{}, error) {
		return g.loadWithLock(ctx, cacheName, key, ttl, loader)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate 显式清除一个缓存条目。
func (g *Guard) Invalidate(ctx context.Context, cacheName, key string) error {
	return g.redisClient.GetClient().Del(ctx, cacheKey(cacheName, key)).Err()
}

// loadWithLock 是跨实例的回源协调：抢到锁的实例回源并填充，
// 其余实例等待后重查，最后兜底直接回源。
func (g *Guard) loadWithLock(ctx context.Context, cacheName, key string, ttl time.Duration, loader Loader) (string, error) {
	rdb := g.redisClient.GetClient()
	full := cacheKey(cacheName, key)
	lockKey := full + ":load"

	acquired, err := g.locker.TryLock(ctx, lockKey, g.lockTTL)
	if err != nil {
		return "", err
	}

	if acquired {
		defer g.locker.Unlock(context.WithoutCancel(ctx), lockKey)

		value, err := loader(ctx)
		if err != nil {
			// 加载失败不写缓存，错误原样抛给触发者
			return "", err
		}
		loaderCalls.Inc()
		if err := rdb.Set(ctx, full, value, ttl).Err(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", full).Msg("cache populate failed")
		}
		return value, nil
	}

	// 落选者：等一个固定的短间隔，回源者此时多半已经填好缓存
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(g.waitInterval):
	}

	val, err := rdb.Get(ctx, full).Result()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("cache re-check failed: %w", err)
	}

	// 仍然没有（回源者加载失败或超时），兜底自己加载一次，不写缓存
	loaderCalls.Inc()
	return loader(ctx)
}

// maybeRefreshAsync 在命中路径上以小概率触发异步提前刷新。
// 刷新失败只记日志：此刻缓存里仍有一份尚未过期的值在正常服务。
func (g *Guard) maybeRefreshAsync(cacheName, key string, ttl time.Duration, loader Loader) {
	if g.randFloat() >= g.refreshProbability {
		return
	}

	rdb := g.redisClient.GetClient()
	full := cacheKey(cacheName, key)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.lockTTL)
		defer cancel()

		remaining, err := rdb.PTTL(ctx, full).Result()
		if err != nil || remaining <= 0 {
			return
		}
		if float64(remaining) > g.refreshThreshold*float64(ttl) {
			return
		}

		// 刷新也走 singleflight，避免同一实例上并发触发多次回源
		_, _, _ = g.group.Do(full+":refresh", func() (interface{}, error) {
			value, err := loader(ctx)
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", full).Msg("early refresh failed, serving stale value")
				return nil, err
			}
			loaderCalls.Inc()
			earlyRefreshes.Inc()
			if err := rdb.Set(ctx, full, value, ttl).Err(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", full).Msg("early refresh populate failed")
			}
			return value, nil
		})
	}()
}
