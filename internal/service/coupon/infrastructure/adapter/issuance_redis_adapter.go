// internal/service/coupon/infrastructure/adapter/issuance_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flashmart/internal/pkg/redis"
	"flashmart/internal/service/coupon/domain"
)

const (
	issueScriptName    = "coupon_issue"
	rollbackScriptName = "coupon_rollback"
)

// IssuanceRedisAdapter 是 port.IssuanceStore 的 Redis 实现。
// 判重、扣减、记名在一个 Lua 脚本里完成，天然排除了
// 「判重通过但集合插入时已被并发请求占位」的竞态窗口。
type IssuanceRedisAdapter struct {
	redisClient *redis.Client
}

// NewIssuanceRedisAdapter 创建发放存储适配器，初始化时加载所需脚本。
func NewIssuanceRedisAdapter(redisClient *redis.Client) (*IssuanceRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(issueScriptName, issueScript); err != nil {
		return nil, fmt.Errorf("failed to load critical issue script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(rollbackScriptName, rollbackScript); err != nil {
		return nil, fmt.Errorf("failed to load rollback script: %w", err)
	}
	return &IssuanceRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(code string) string  { return fmt.Sprintf("coupon:stock:{%s}", code) }
func issuedKey(code string) string { return fmt.Sprintf("coupon:issued:{%s}", code) }
func metaKey(code string) string   { return fmt.Sprintf("coupon:meta:{%s}", code) }

// Initialize 播种库存与元信息，过期时间与券有效期对齐。
func (a *IssuanceRedisAdapter) Initialize(ctx context.Context, code string, quantity int64, validFrom, validUntil time.Time) error {
	// 使用 pipeline 一次提交
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.Set(ctx, stockKey(code), quantity, 0)
	pipe.Del(ctx, issuedKey(code))
	pipe.HSet(ctx, metaKey(code), map[string]interface{}{
		"total":       quantity,
		"valid_from":  timeToMillis(validFrom),
		"valid_until": timeToMillis(validUntil),
	})
	if !validUntil.IsZero() {
		ttl := time.Until(validUntil)
		if ttl > 0 {
			pipe.Expire(ctx, stockKey(code), ttl)
			pipe.Expire(ctx, metaKey(code), ttl)
			// 领取集合再保留一段时间，方便事后审计幂等结果
			pipe.Expire(ctx, issuedKey(code), ttl+24*time.Hour)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to initialize coupon %s: %w", code, err)
	}
	return nil
}

// TryIssue 执行发放脚本并翻译结果。
func (a *IssuanceRedisAdapter) TryIssue(ctx context.Context, code, userID string) (domain.IssueResult, error) {
	keys := []string{stockKey(code), issuedKey(code)}
	result, err := a.redisClient.RunScript(ctx, issueScriptName, keys, userID)
	if err != nil {
		return 0, fmt.Errorf("issuance adapter failed to run script: %w", err)
	}

	res, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}

	switch res {
	case 0:
		return domain.IssueSoldOut, nil
	case 1:
		return domain.IssueSuccess, nil
	case 2:
		return domain.IssueAlreadyIssued, nil
	default:
		return 0, fmt.Errorf("unknown result code from issue script: %d", res)
	}
}

// Rollback 补偿一次发放：移除领取记录并归还库存。
func (a *IssuanceRedisAdapter) Rollback(ctx context.Context, code, userID string) error {
	keys := []string{stockKey(code), issuedKey(code)}
	_, err := a.redisClient.RunScript(ctx, rollbackScriptName, keys, userID)
	if err != nil {
		return fmt.Errorf("issuance adapter failed to run rollback script: %w", err)
	}
	return nil
}

// HasIssued 查询用户是否已领取，暴露给客户端做前置检查。
func (a *IssuanceRedisAdapter) HasIssued(ctx context.Context, code, userID string) (bool, error) {
	return a.redisClient.GetClient().SIsMember(ctx, issuedKey(code), userID).Result()
}

// Status 返回剩余库存、总量与有效期。
func (a *IssuanceRedisAdapter) Status(ctx context.Context, code string) (*domain.CouponStatus, error) {
	pipe := a.redisClient.GetClient().Pipeline()
	stockCmd := pipe.Get(ctx, stockKey(code))
	metaCmd := pipe.HGetAll(ctx, metaKey(code))
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("failed to read coupon status: %w", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, domain.ErrCouponNotFound
	}

	remaining, err := stockCmd.Int64()
	if err == goredis.Nil {
		// 库存键已过期而 meta 尚在，按 0 处理
		remaining = 0
	} else if err != nil {
		return nil, fmt.Errorf("failed to read coupon stock: %w", err)
	}

	status := &domain.CouponStatus{
		Code:       code,
		Remaining:  remaining,
		ValidFrom:  millisToTime(meta["valid_from"]),
		ValidUntil: millisToTime(meta["valid_until"]),
	}
	status.TotalQuantity, _ = strconv.ParseInt(meta["total"], 10, 64)
	return status, nil
}

// IssuedCount 返回已领取人数。
func (a *IssuanceRedisAdapter) IssuedCount(ctx context.Context, code string) (int64, error) {
	return a.redisClient.GetClient().SCard(ctx, issuedKey(code)).Result()
}

// AddStock 运营补货：剩余与总量同步增加，保持 remaining+issued == total。
func (a *IssuanceRedisAdapter) AddStock(ctx context.Context, code string, delta int64) error {
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.IncrBy(ctx, stockKey(code), delta)
	pipe.HIncrBy(ctx, metaKey(code), "total", delta)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add stock for %s: %w", code, err)
	}
	return nil
}

// Teardown 删除券的全部运行期状态。
func (a *IssuanceRedisAdapter) Teardown(ctx context.Context, code string) error {
	return a.redisClient.GetClient().Del(ctx, stockKey(code), issuedKey(code), metaKey(code)).Err()
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// issueScript 原子地完成判重、扣减与记名。
//
// KEYS[1]: 库存计数, 例如 coupon:stock:{WELCOME100}
// KEYS[2]: 已领取用户集合, 例如 coupon:issued:{WELCOME100}
// ARGV[1]: 当前请求的用户 ID
var issueScript = `
-- 1. 检查用户是否已领取过
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
    return 2 -- 重复领取
end

-- 2. 获取当前库存
local stock = tonumber(redis.call('get', KEYS[1]))

-- 3. 检查库存是否充足
if stock and stock > 0 then
    -- 4. 扣减库存
    redis.call('decr', KEYS[1])
    -- 5. 记录领取人；理论上第 1 步已经排除重复，
    --    这里仍按返回值兜底：若插入失败则归还库存
    if redis.call('sadd', KEYS[2], ARGV[1]) == 0 then
        redis.call('incr', KEYS[1])
        return 2
    end
    return 1 -- 发放成功
else
    return 0 -- 已发完
end
`

// rollbackScript 是补偿脚本：只有确实移除了领取记录才归还库存，
// 幂等，可安全重试。
var rollbackScript = `
if redis.call('srem', KEYS[2], ARGV[1]) == 1 then
    redis.call('incrby', KEYS[1], 1)
    return 1
end
return 0
`
