// Package events 分发凭证刷新事件：进程内通过 EventBus，跨进程通过 NATS。
package events

import (
	"context"

	evbus "github.com/asaskevich/EventBus"

	"github.com/ShinyNito/wechatkit/core"
)

// TopicCredentialUpdated 凭证刷新事件的主题
const TopicCredentialUpdated = "credential:updated"

// Handler 凭证刷新事件处理函数
type Handler func(ctx context.Context, update core.CredentialUpdate)

// Bus 进程内事件总线
type Bus struct {
	bus evbus.Bus
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe 同步订阅，处理函数在刷新凭证的 goroutine 中执行
func (b *Bus) Subscribe(fn Handler) error {
	return b.bus.Subscribe(TopicCredentialUpdated, fn)
}

// SubscribeAsync 异步订阅，同一处理函数的调用按顺序执行
func (b *Bus) SubscribeAsync(fn Handler) error {
	return b.bus.SubscribeAsync(TopicCredentialUpdated, fn, true)
}

// Unsubscribe 取消订阅
func (b *Bus) Unsubscribe(fn Handler) error {
	return b.bus.Unsubscribe(TopicCredentialUpdated, fn)
}

// HasSubscribers 是否存在订阅者
func (b *Bus) HasSubscribers() bool {
	return b.bus.HasCallback(TopicCredentialUpdated)
}

// Publish 发布凭证刷新事件
func (b *Bus) Publish(ctx context.Context, update core.CredentialUpdate) {
	b.bus.Publish(TopicCredentialUpdated, ctx, update)
}

// WaitAsync 等待异步订阅者处理完毕
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

// Hook 返回可注入凭证仓库的回调
func (b *Bus) Hook() core.UpdateHook {
	return b.Publish
}
