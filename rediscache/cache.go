// Package rediscache 提供基于 Redis 的 core.Cache 实现，
// 多个进程共享同一 Redis 时可共享凭证，避免各自刷新导致旧凭证失效。
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ShinyNito/wechatkit/core"
)

// Config Redis 连接配置
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Option 可选配置
type Option func(*Cache)

// WithPrefix 为所有键添加前缀
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache Redis 缓存
type Cache struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// New 使用已有的 Redis 客户端创建缓存
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial 按配置连接 Redis 并检查连通性
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if cfg.Prefix != "" {
		opts = append([]Option{WithPrefix(cfg.Prefix)}, opts...)
	}
	return New(client, opts...), nil
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Get 读取缓存；Redis 错误按未命中处理并记录日志
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "redis get failed", slog.String("key", c.key(key)), slog.Any("error", err))
		return "", false
	}
	return value, true
}

// Set 写入缓存，ttl 为 0 表示永不过期
func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, max(ttl, 0)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(key), err)
	}
	return nil
}

// Delete 删除缓存，键不存在时静默成功
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key(key), err)
	}
	return nil
}

// Close 关闭底层连接
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ core.Cache = (*Cache)(nil)
