// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 是 go-redis 的薄封装，附带一个按名字注册的 Lua 脚本表。
// 业务适配器在初始化时注册脚本，运行时用名字调用，
// go-redis 的 Script 类型自己处理 EVALSHA / EVAL 回退。
type Client struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建一个进程级的 Redis 客户端。
func NewClient(addr string, db int) *Client {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   db,
	})
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*goredis.Script),
	}
}

// LoadScriptFromContent 注册一段内嵌的 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行一个已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供不需要脚本的简单命令使用。
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// Ping 检查连接可用性。
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 释放连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
