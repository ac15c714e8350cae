// internal/pkg/lock/zk_lock.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const zkLockRoot = "/flashmart/locks" // 所有分布式锁的根节点

// ZkLocker 是 Locker 的 ZooKeeper 实现，基于临时顺序节点。
// 临时节点随会话消失，等价于租约自动过期；ttl 参数由会话超时承担，
// TryLock 的 ttl 入参在这个后端里被忽略。
type ZkLocker struct {
	conn *zk.Conn

	retryBackoff time.Duration

	mu    sync.Mutex
	nodes map[string]string // key -> 自己创建的节点路径
}

// NewZkLocker 连接 ZooKeeper 并确保锁根节点存在。
func NewZkLocker(servers []string, sessionTimeout time.Duration) (*ZkLocker, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect zookeeper: %w", err)
	}

	if err := ensurePath(conn, zkLockRoot); err != nil {
		conn.Close()
		return nil, err
	}

	return &ZkLocker{
		conn:         conn,
		retryBackoff: 50 * time.Millisecond,
		nodes:        make(map[string]string),
	}, nil
}

func ensurePath(conn *zk.Conn, path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur = cur + "/" + p
		_, err := conn.Create(cur, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create lock node %s: %w", cur, err)
		}
	}
	return nil
}

// TryLock 创建临时顺序节点，只有成为最小节点才算拿到锁，
// 否则立即删除自己的节点并返回 false（非阻塞语义）。
func (l *ZkLocker) TryLock(ctx context.Context, key string, _ time.Duration) (bool, error) {
	lockPath := zkLockRoot + "/" + key
	if err := ensurePath(l.conn, lockPath); err != nil {
		return false, err
	}

	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, fmt.Errorf("failed to create sequential node: %w", err)
	}

	children, _, err := l.conn.Children(lockPath)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	sort.Strings(children)

	myNodeName := strings.TrimPrefix(nodePath, lockPath+"/")
	if myNodeName != children[0] {
		// 不是最小节点，放弃本次尝试
		_ = l.conn.Delete(nodePath, -1)
		return false, nil
	}

	l.mu.Lock()
	l.nodes[key] = nodePath
	l.mu.Unlock()
	return true, nil
}

// Unlock 删除自己创建的节点。节点已随会话消失时视为已释放。
func (l *ZkLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	nodePath, held := l.nodes[key]
	delete(l.nodes, key)
	l.mu.Unlock()
	if !held {
		return nil
	}

	err := l.conn.Delete(nodePath, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}

// ExecuteWithLock 实现 Locker 接口。
func (l *ZkLocker) ExecuteWithLock(ctx context.Context, key string, timeout time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.TryLock(ctx, key, 0)
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

	defer l.Unlock(context.WithoutCancel(ctx), key)
	return fn(ctx)
}

// Close 断开 ZooKeeper 会话，所有未释放的临时节点随之消失。
func (l *ZkLocker) Close() {
	l.conn.Close()
}
