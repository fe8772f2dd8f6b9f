// Package officialaccount 微信公众号 SDK
package officialaccount

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/core/utils"
	"github.com/ShinyNito/wechatkit/internal/tenant"
)

const (
	accessTokenPath = "/cgi-bin/token"
	getTicketPath   = "/cgi-bin/ticket/getticket"
)

// Config 公众号配置
type Config struct {
	// AppID 公众号 AppID（必填）
	AppID string
	// AppSecret 公众号 AppSecret（必填）
	AppSecret string
	// Token 服务器配置中的令牌，用于校验回调签名（可选）
	Token string
	// EncodingAESKey 消息加解密密钥，安全模式下必填
	EncodingAESKey string

	// Cache 缓存实现（可选，默认使用内存缓存）
	Cache core.Cache
	// CachePrefix 缓存键前缀（可选）
	CachePrefix string
	// HTTPClient 自定义 HTTP 客户端（可选）
	HTTPClient *http.Client
	// InsecureSkipVerify 关闭 TLS 证书校验，仅用于调试
	InsecureSkipVerify bool
	// Logger 日志记录器（可选，默认使用 slog.Default()）
	Logger *slog.Logger
	// BaseURL API 地址（可选，默认 https://api.weixin.qq.com）
	BaseURL string
	// RetryCodes 触发刷新 access_token 并重试的错误码（可选，默认 40001）
	RetryCodes []int
	// OnCredentialUpdate access_token 或 ticket 刷新后的回调（可选）
	OnCredentialUpdate core.UpdateHook
	// Recorder 指标采集（可选）
	Recorder core.Recorder
	// Clock 时钟（可选，测试用）
	Clock func() time.Time
}

// Validate 校验公众号配置
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("appid is required")
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return fmt.Errorf("appsecret is required")
	}
	return nil
}

// Client 公众号客户端
type Client struct {
	cfg     Config
	kit     *tenant.Kit
	crypter *utils.MessageCrypter
}

// New 创建公众号客户端
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid officialaccount config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	kit, err := tenant.New(tenant.Options{
		Tenant:             cfg.AppID,
		BaseURL:            cfg.BaseURL,
		CachePrefix:        cfg.CachePrefix,
		Cache:              cfg.Cache,
		HTTPClient:         cfg.HTTPClient,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             cfg.Logger.With(slog.String("product", "officialaccount")),
		RetryCodes:         cfg.RetryCodes,
		OnUpdate:           cfg.OnCredentialUpdate,
		Recorder:           cfg.Recorder,
		Clock:              cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	err = kit.Register(map[string]core.CredentialFetcher{
		core.CredentialAccessToken: kit.AccessTokenFetcher(accessTokenPath, map[string]string{
			"grant_type": "client_credential",
			"appid":      cfg.AppID,
			"secret":     cfg.AppSecret,
		}),
		core.CredentialJSAPITicket: kit.TicketFetcher(getTicketPath, map[string]string{"type": string(TicketTypeJSAPI)}),
		core.CredentialCardTicket:  kit.TicketFetcher(getTicketPath, map[string]string{"type": string(TicketTypeWxCard)}),
	})
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, kit: kit}
	if cfg.EncodingAESKey != "" {
		c.crypter, err = utils.NewMessageCrypter(cfg.Token, cfg.EncodingAESKey, cfg.AppID)
		if err != nil {
			return nil, fmt.Errorf("invalid officialaccount config: %w", err)
		}
	}
	return c, nil
}

// Config 返回配置副本
func (c *Client) Config() Config {
	return c.cfg
}

// API 返回附加 access_token 的底层客户端，用于调用未封装的接口
func (c *Client) API() *core.Client {
	return c.kit.API
}

// Credentials 返回凭证仓库
func (c *Client) Credentials() *core.CredentialStore {
	return c.kit.Store
}

// AccessToken 获取 access_token
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.kit.Store.Get(ctx, core.CredentialAccessToken)
}

// RefreshAccessToken 强制刷新 access_token
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	return c.kit.Store.Refresh(ctx, core.CredentialAccessToken)
}

// LastError 最近一次接口返回的错误码
func (c *Client) LastError() *core.WechatError {
	return c.kit.API.LastError()
}

// TypedRequest 返回类型化结果的请求
type TypedRequest[T any] = core.TypedRequest[T]

// Request 创建类型化请求，默认附加 access_token
func Request[T any](c *Client) *TypedRequest[T] {
	return core.NewTypedRequest[T](c.kit.API)
}
