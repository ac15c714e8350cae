// internal/pkg/lock/redis_lock.go
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashmart/internal/pkg/redis"
)

const lockKeyPrefix = "lock:"

// 释放锁之前必须校验 value 是否还是自己写入的 token，
// 否则一个已过期又被别人拿走的锁会被误删。
const unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end
`

// RedisLocker 基于 Redis SET NX PX 实现 Locker。
type RedisLocker struct {
	client *redis.Client

	// leaseTTL 是 ExecuteWithLock 使用的默认租约时长
	leaseTTL time.Duration
	// retryBackoff 是 ExecuteWithLock 抢锁失败后的重试间隔
	retryBackoff time.Duration

	mu     sync.Mutex
	owners map[string]string // key -> 本实例持有的 token
}

// NewRedisLocker 创建 Redis 锁管理器。
func NewRedisLocker(client *redis.Client, leaseTTL, retryBackoff time.Duration) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent("lock_release", unlockScript); err != nil {
		return nil, err
	}
	return &RedisLocker{
		client:       client,
		leaseTTL:     leaseTTL,
		retryBackoff: retryBackoff,
		owners:       make(map[string]string),
	}, nil
}

// TryLock 实现 Locker 接口。
// 同一实例上每个 key 最多记录一个未释放的租约：上一次获取还没 Unlock 时
// 直接返回 false，即使远端租约已经过期。否则新 token 会覆盖旧记录，
// 迟到的 Unlock 就会拿着新 token 误删后继持有者的锁。
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	l.mu.Lock()
	if _, outstanding := l.owners[key]; outstanding {
		l.mu.Unlock()
		return false, nil
	}
	// 先占位再发请求，两个 goroutine 不会同时对同一 key 发 SetNX
	l.owners[key] = token
	l.mu.Unlock()

	ok, err := l.client.GetClient().SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil || !ok {
		l.mu.Lock()
		if l.owners[key] == token {
			delete(l.owners, key)
		}
		l.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Unlock 实现 Locker 接口，只释放自己持有的租约。
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, held := l.owners[key]
	delete(l.owners, key)
	l.mu.Unlock()
	if !held {
		return nil
	}

	_, err := l.client.RunScript(ctx, "lock_release", []string{lockKeyPrefix + key}, token)
	return err
}

// ExecuteWithLock 实现 Locker 接口。
func (l *RedisLocker) ExecuteWithLock(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.TryLock(ctx, key, l.leaseTTL)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockAcquisitionFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryBackoff):
		}
	}

	// defer 保证 panic 时也会释放；释放本身带所有权校验
	defer l.Unlock(context.WithoutCancel(ctx), key)
	return fn(ctx)
}
