package core

import (
	"context"
	"time"
)

// Cache 凭证记录的外部存储，CredentialStore 通过它在进程重启或多实例之间共享凭证。
//
// 值为 cachedCredential 的 JSON，TTL 与凭证的 expires_in 一致。
// 实现需要并发安全；读取失败按未命中处理，写入和删除失败由调用方记录日志。
type Cache interface {
	// Get 未命中或已过期时返回 ("", false)
	Get(ctx context.Context, key string) (string, bool)
	// Set ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Delete key 不存在时返回 nil
	Delete(ctx context.Context, key string) error
}
