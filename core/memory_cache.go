package core

import (
	"context"
	"sync"
	"time"
)

// cacheItem 缓存项
type cacheItem struct {
	value     string
	expiresAt time.Time // 零值表示永不过期
}

func (item *cacheItem) expiredAt(now time.Time) bool {
	return !item.expiresAt.IsZero() && !now.Before(item.expiresAt)
}

// MemoryCache 进程内缓存实现，适用于单实例部署与测试
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
	now   func() time.Time
}

// NewMemoryCache 创建内存缓存实例
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock 使用指定时钟判断过期，便于与 CredentialStore 共用模拟时钟
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		items: make(map[string]*cacheItem),
		now:   now,
	}
}

// Get 获取缓存值
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.expiredAt(c.now()) {
		return "", false
	}
	return item.value, true
}

// Set 设置缓存值，ttl 为 0 表示永不过期
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &cacheItem{value: value, expiresAt: expiresAt}
	return nil
}

// Delete 删除缓存
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Len 返回当前条目数（包含尚未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup 清理过期缓存项，可由调用方定期执行
func (c *MemoryCache) Cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, item := range c.items {
		if item.expiredAt(now) {
			delete(c.items, key)
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
