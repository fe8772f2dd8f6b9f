package core

import (
	"context"
	"time"
)

// 凭证名称，作为 CredentialStore 中的槽位名与缓存键的最后一段
const (
	CredentialAccessToken      = "access_token"
	CredentialJSAPITicket      = "jsapi_ticket"
	CredentialCardTicket       = "wx_card_ticket"
	CredentialAgentJSAPITicket = "agent_jsapi_ticket"
)

// Credential 带过期时间的凭证（access_token 或各类 ticket）
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt 凭证在 now 时刻是否仍然有效
// 恰好到期的凭证视为已过期。
func (c Credential) ValidAt(now time.Time) bool {
	return c.Value != "" && now.Before(c.ExpiresAt)
}

// FetchResult 远程获取凭证的结果
type FetchResult struct {
	Value     string
	ExpiresIn int    // 秒
	Raw       []byte // 原始响应体，原样交给 UpdateHook
}

// CredentialFetcher 远程获取凭证的函数
type CredentialFetcher func(ctx context.Context) (FetchResult, error)

// CredentialProvider 凭证提供者接口
// Client 通过它为请求附加凭证，并在收到可重试错误码时强制刷新。
type CredentialProvider interface {
	// Get 获取指定名称的凭证，命中内存或缓存时不发起远程请求
	Get(ctx context.Context, name string) (string, error)

	// Refresh 跳过内存与缓存，强制从远程获取新凭证
	Refresh(ctx context.Context, name string) (string, error)
}

// RejectedRefresher 可选接口，Client 重试时优先使用。
// rejected 为被微信拒绝的凭证值，提供者可据此判断凭证是否已被其他调用换新。
type RejectedRefresher interface {
	RefreshRejected(ctx context.Context, name, rejected string) (string, error)
}

// CredentialUpdate 凭证刷新事件
type CredentialUpdate struct {
	Tenant    string
	Name      string
	Value     string
	ExpiresAt time.Time
	Raw       []byte
}

// UpdateHook 凭证刷新成功后的回调
type UpdateHook func(ctx context.Context, update CredentialUpdate)

// ChainUpdateHooks 将多个回调按顺序组合，忽略 nil
func ChainUpdateHooks(hooks ...UpdateHook) UpdateHook {
	var chained []UpdateHook
	for _, hook := range hooks {
		if hook != nil {
			chained = append(chained, hook)
		}
	}
	if len(chained) == 0 {
		return nil
	}
	return func(ctx context.Context, update CredentialUpdate) {
		for _, hook := range chained {
			hook(ctx, update)
		}
	}
}
