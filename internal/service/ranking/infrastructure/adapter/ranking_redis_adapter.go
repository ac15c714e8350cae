// internal/service/ranking/infrastructure/adapter/ranking_redis_adapter.go
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flashmart/internal/pkg/redis"
	"flashmart/internal/service/ranking/domain"
)

// 保留期在窗口自然长度上加一小时余量，避免整点边界上
// 查询撞到刚好过期的窗口。
const (
	dailyRetention  = 24*time.Hour + time.Hour
	weeklyRetention = 7*24*time.Hour + time.Hour
)

// RankingRedisAdapter 是 port.ScoreStore 的 Redis 实现，
// 底层是按窗口分键的 sorted set。
type RankingRedisAdapter struct {
	redisClient *redis.Client
}

// NewRankingRedisAdapter 创建榜单存储适配器。
func NewRankingRedisAdapter(redisClient *redis.Client) *RankingRedisAdapter {
	return &RankingRedisAdapter{redisClient: redisClient}
}

func dailyKey(t time.Time) string {
	return "ranking:daily:" + t.Format("20060102")
}

func weeklyKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("ranking:weekly:%04d-W%02d", year, week)
}

func windowKey(window domain.Window, t time.Time) string {
	if window == domain.WindowWeekly {
		return weeklyKey(t)
	}
	return dailyKey(t)
}

// IncrementScore 同时累加当前日榜与周榜。
// 窗口键首次出现时设置保留期（TTL 只在没有时补上，不会续命）。
func (a *RankingRedisAdapter) IncrementScore(ctx context.Context, productID string, amount float64, now time.Time) error {
	rdb := a.redisClient.GetClient()

	pipe := rdb.Pipeline()
	pipe.ZIncrBy(ctx, dailyKey(now), amount, productID)
	pipe.ZIncrBy(ctx, weeklyKey(now), amount, productID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment ranking score: %w", err)
	}

	if err := a.ensureExpiry(ctx, dailyKey(now), dailyRetention); err != nil {
		return err
	}
	return a.ensureExpiry(ctx, weeklyKey(now), weeklyRetention)
}

func (a *RankingRedisAdapter) ensureExpiry(ctx context.Context, key string, retention time.Duration) error {
	rdb := a.redisClient.GetClient()
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return err
	}
	// -1 表示键存在但没有 TTL，即本窗口第一次被写入
	if ttl == -1 {
		return rdb.Expire(ctx, key, retention).Err()
	}
	return nil
}

// TopN 返回按分数降序的前 limit 个商品。
func (a *RankingRedisAdapter) TopN(ctx context.Context, window domain.Window, limit int64, now time.Time) ([]domain.ProductScore, error) {
	if limit <= 0 {
		return nil, nil
	}
	entries, err := a.redisClient.GetClient().
		ZRevRangeWithScores(ctx, windowKey(window, now), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking top-n: %w", err)
	}

	scores := make([]domain.ProductScore, 0, len(entries))
	for _, e := range entries {
		scores = append(scores, domain.ProductScore{
			ProductID: fmt.Sprint(e.Member),
			Score:     e.Score,
		})
	}
	return scores, nil
}

// RankOf 返回 1-based 名次，未上榜时 ok 为 false。
func (a *RankingRedisAdapter) RankOf(ctx context.Context, window domain.Window, productID string, now time.Time) (int64, bool, error) {
	rank, err := a.redisClient.GetClient().
		ZRevRank(ctx, windowKey(window, now), productID).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank + 1, true, nil
}

// RefreshWindowExpiry 窗口滚动时调用，刷新当前窗口的保留期。
// 键尚不存在（窗口还没有任何分数）时 Expire 是 no-op，没有关系。
func (a *RankingRedisAdapter) RefreshWindowExpiry(ctx context.Context, now time.Time) error {
	rdb := a.redisClient.GetClient()
	pipe := rdb.Pipeline()
	pipe.Expire(ctx, dailyKey(now), dailyRetention)
	pipe.Expire(ctx, weeklyKey(now), weeklyRetention)
	_, err := pipe.Exec(ctx)
	return err
}
