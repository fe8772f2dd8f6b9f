// Package miniprogram 微信小程序 SDK
package miniprogram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/internal/tenant"
)

const accessTokenPath = "/cgi-bin/token"

// Config 小程序配置
type Config struct {
	AppID     string
	AppSecret string

	Cache              core.Cache
	CachePrefix        string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	Logger             *slog.Logger
	BaseURL            string
	RetryCodes         []int
	OnCredentialUpdate core.UpdateHook
	Recorder           core.Recorder
	Clock              func() time.Time
}

// Validate 校验小程序配置
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("appid is required")
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return fmt.Errorf("appsecret is required")
	}
	return nil
}

// Client 小程序客户端
type Client struct {
	cfg Config
	kit *tenant.Kit
}

// New 创建小程序客户端
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid miniprogram config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	kit, err := tenant.New(tenant.Options{
		Tenant:             cfg.AppID,
		BaseURL:            cfg.BaseURL,
		CachePrefix:        cfg.CachePrefix,
		Cache:              cfg.Cache,
		HTTPClient:         cfg.HTTPClient,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             cfg.Logger.With(slog.String("product", "miniprogram")),
		RetryCodes:         cfg.RetryCodes,
		OnUpdate:           cfg.OnCredentialUpdate,
		Recorder:           cfg.Recorder,
		Clock:              cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	err = kit.Store.Register(core.CredentialAccessToken, kit.AccessTokenFetcher(accessTokenPath, map[string]string{
		"grant_type": "client_credential",
		"appid":      cfg.AppID,
		"secret":     cfg.AppSecret,
	}))
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, kit: kit}, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// API 返回附加 access_token 的底层客户端
func (c *Client) API() *core.Client {
	return c.kit.API
}

func (c *Client) Credentials() *core.CredentialStore {
	return c.kit.Store
}

// AccessToken 获取接口调用凭证
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.kit.Store.Get(ctx, core.CredentialAccessToken)
}

type TypedRequest[T any] = core.TypedRequest[T]

// Request 创建类型化请求；code2Session 等不需要 access_token 的接口需显式调用 WithoutToken
func Request[T any](c *Client) *TypedRequest[T] {
	return core.NewTypedRequest[T](c.kit.API)
}
