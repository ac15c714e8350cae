// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 3 * time.Second

// Client 封装了 go-redis 客户端，并维护一个按名字索引的 Lua 脚本注册表。
// 业务方在初始化阶段注册脚本，之后通过 RunScript 执行，
// go-redis 的 Script 会优先走 EVALSHA，脚本未加载时自动回退 EVAL。
type Client struct {
	rdb goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// Options 是创建客户端需要的连接参数。
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 创建客户端并通过 Ping 验证连通性。
// Redis 不可达时直接返回错误，由组装根决定是否终止进程。
func NewClient(opts Options) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  defaultOpTimeout,
		ReadTimeout:  defaultOpTimeout,
		WriteTimeout: defaultOpTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*goredis.Script),
	}, nil
}

// LoadScriptFromContent 注册一段 Lua 脚本并预加载到服务端。
// 预加载失败不算致命（节点重启后 EVAL 回退仍然可用），只有重名注册会报错。
func (c *Client) LoadScriptFromContent(name, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.scripts[name]; exists {
		return fmt.Errorf("script %q already registered", name)
	}

	script := goredis.NewScript(content)
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	// 尽力预热 script cache，错误忽略
	_ = script.Load(ctx, c.rdb).Err()

	c.scripts[name] = script
	return nil
}

// RunScript 按名字执行已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供需要 pipeline 或原生命令的调用方使用。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.rdb
}

// Close 释放连接池。
func (c *Client) Close() error {
	return c.rdb.Close()
}
