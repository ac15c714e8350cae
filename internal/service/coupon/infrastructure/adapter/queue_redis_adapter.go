// internal/service/coupon/infrastructure/adapter/queue_redis_adapter.go
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flashmart/internal/pkg/redis"
)

const activeQueuesKey = "coupon:waiting:active"

// QueueRedisAdapter 是 port.WaitingQueue 的 Redis 实现。
// 每个券码一个 sorted set，score 为入队时间（毫秒），
// 分数相同时 Redis 按成员字典序排序，满足"尽力 FIFO"的要求。
type QueueRedisAdapter struct {
	redisClient *redis.Client
	now         func() time.Time
}

// NewQueueRedisAdapter 创建排队队列适配器。
func NewQueueRedisAdapter(redisClient *redis.Client) *QueueRedisAdapter {
	return &QueueRedisAdapter{redisClient: redisClient, now: time.Now}
}

func waitingKey(code string) string { return fmt.Sprintf("coupon:waiting:{%s}", code) }

// Enqueue 按当前时间入队并返回 1-based 排名。
// ZADD NX 保证重复入队不会刷新原来的排队时间，重复调用拿到的是已有排名。
func (a *QueueRedisAdapter) Enqueue(ctx context.Context, code, userID string) (int64, error) {
	rdb := a.redisClient.GetClient()
	score := float64(a.now().UnixMilli())

	pipe := rdb.Pipeline()
	pipe.ZAddNX(ctx, waitingKey(code), goredis.Z{Score: score, Member: userID})
	pipe.SAdd(ctx, activeQueuesKey, code)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to enqueue user %s for %s: %w", userID, code, err)
	}

	rank, err := rdb.ZRank(ctx, waitingKey(code), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue rank: %w", err)
	}
	return rank + 1, nil
}

// Peek 返回最早入队的至多 n 个用户，不出队。
func (a *QueueRedisAdapter) Peek(ctx context.Context, code string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return a.redisClient.GetClient().ZRange(ctx, waitingKey(code), 0, n-1).Result()
}

// Remove 将用户移出队列，队列清空后同时摘掉活跃索引。
func (a *QueueRedisAdapter) Remove(ctx context.Context, code, userID string) error {
	rdb := a.redisClient.GetClient()
	if err := rdb.ZRem(ctx, waitingKey(code), userID).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from queue %s: %w", userID, code, err)
	}

	size, err := rdb.ZCard(ctx, waitingKey(code)).Result()
	if err == nil && size == 0 {
		_ = rdb.SRem(ctx, activeQueuesKey, code).Err()
	}
	return nil
}

// Rank 返回用户的 1-based 排名，不在队列中返回 0。
func (a *QueueRedisAdapter) Rank(ctx context.Context, code, userID string) (int64, error) {
	rank, err := a.redisClient.GetClient().ZRank(ctx, waitingKey(code), userID).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

// Len 返回队列长度。
func (a *QueueRedisAdapter) Len(ctx context.Context, code string) (int64, error) {
	return a.redisClient.GetClient().ZCard(ctx, waitingKey(code)).Result()
}

// ActiveCodes 枚举有排队用户的券码。
// 索引集合可能残留空队列的券码（Remove 与并发入队交错），
// 这里逐个核对真实长度后过滤，顺带清理残留。
func (a *QueueRedisAdapter) ActiveCodes(ctx context.Context) ([]string, error) {
	rdb := a.redisClient.GetClient()
	codes, err := rdb.SMembers(ctx, activeQueuesKey).Result()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	pipe := rdb.Pipeline()
	cards := make([]*goredis.IntCmd, 0, len(codes))
	for _, code := range codes {
		cards = append(cards, pipe.ZCard(ctx, waitingKey(code)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	active := make([]string, 0, len(codes))
	for i, cmd := range cards {
		if cmd.Val() > 0 {
			active = append(active, codes[i])
		} else {
			_ = rdb.SRem(ctx, activeQueuesKey, codes[i]).Err()
		}
	}
	return active, nil
}
