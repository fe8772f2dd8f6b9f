package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ShinyNito/wechatkit/core"
)

const (
	DefaultSubject = "wechatkit.credential.updated"
	eventType      = "credential.updated"
)

// MsgPublisher NATS 发布能力，*nats.Conn 满足该接口
type MsgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// CredentialEvent 广播到 NATS 的凭证刷新事件
// 默认不携带凭证值，订阅方按需回源读取。
type CredentialEvent struct {
	ID         uuid.UUID `json:"id"`
	Tenant     string    `json:"tenant"`
	Name       string    `json:"name"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
	Value      string    `json:"value,omitempty"`
}

// NATSPublisher 将凭证刷新事件发布到 <subject>.<tenant>.<name>
type NATSPublisher struct {
	conn         MsgPublisher
	subject      string
	includeValue bool
	service      string
	logger       *slog.Logger
	now          func() time.Time
}

type NATSOption func(*NATSPublisher)

// WithSubject 设置主题前缀
func WithSubject(subject string) NATSOption {
	return func(p *NATSPublisher) {
		if subject != "" {
			p.subject = subject
		}
	}
}

// WithValue 在事件中携带凭证值，仅在订阅方可信时开启
func WithValue() NATSOption {
	return func(p *NATSPublisher) { p.includeValue = true }
}

func WithService(service string) NATSOption {
	return func(p *NATSPublisher) { p.service = service }
}

func WithLogger(logger *slog.Logger) NATSOption {
	return func(p *NATSPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(now func() time.Time) NATSOption {
	return func(p *NATSPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewNATSPublisher 创建 NATS 发布器
func NewNATSPublisher(conn MsgPublisher, opts ...NATSOption) *NATSPublisher {
	p := &NATSPublisher{
		conn:    conn,
		subject: DefaultSubject,
		service: "wechatkit",
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject 返回事件的完整主题，tenant 中的 . 与空白会被替换为 _
func (p *NATSPublisher) Subject(tenant, name string) string {
	return p.subject + "." + subjectToken(tenant) + "." + subjectToken(name)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '\n', '\r', '*', '>':
			return '_'
		}
		return r
	}, s)
}

// Publish 发布一次凭证刷新事件
func (p *NATSPublisher) Publish(ctx context.Context, update core.CredentialUpdate) error {
	event := CredentialEvent{
		ID:         uuid.New(),
		Tenant:     update.Tenant,
		Name:       update.Name,
		ExpiresAt:  update.ExpiresAt.UTC(),
		OccurredAt: p.now().UTC(),
	}
	if p.includeValue {
		event.Value = update.Value
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(update.Tenant, update.Name))
	msg.Data = data
	msg.Header.Set("event_id", event.ID.String())
	msg.Header.Set("event_type", eventType)
	msg.Header.Set("tenant", update.Tenant)
	msg.Header.Set("service", p.service)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.logger.DebugContext(ctx, "credential event published",
		slog.String("subject", msg.Subject),
		slog.String("event_id", event.ID.String()),
	)
	return nil
}

// Hook 返回凭证仓库回调，发布失败只记录日志
func (p *NATSPublisher) Hook() core.UpdateHook {
	return func(ctx context.Context, update core.CredentialUpdate) {
		if err := p.Publish(ctx, update); err != nil {
			p.logger.WarnContext(ctx, "publish credential event failed",
				slog.String("tenant", update.Tenant),
				slog.String("name", update.Name),
				slog.Any("error", err),
			)
		}
	}
}
