// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockAcquisitionFailed 表示在调用方给定的超时时间内没有抢到锁。
// 是否重试、退避还是转入排队，由调用方决定，锁管理器内部不做重试。
var ErrLockAcquisitionFailed = errors.New("lock: acquisition timed out")

// Locker 定义了跨实例互斥的统一契约。
//
// 锁是带租约的：持有者崩溃后租约自动过期，不会造成死锁。
// 没有心跳续租机制，调用方必须选择一个大于临界区预期耗时的租约时长。
type Locker interface {
	// TryLock 非阻塞地尝试获取 key 上的租约，返回是否成功。
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock 释放自己持有的租约。租约已经过期并被他人重新获取时，
	// 释放是 no-op，绝不会误删他人的锁。
	Unlock(ctx context.Context, key string) error

	// ExecuteWithLock 在 timeout 内反复尝试获取锁，成功后执行 fn，
	// 并保证无论正常返回、出错还是 panic 都会释放锁。
	// 超时未获取到锁时返回 ErrLockAcquisitionFailed，fn 不会被执行。
	ExecuteWithLock(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error
}
