// Package work 企业微信自建应用 SDK
package work

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/core/utils"
	"github.com/ShinyNito/wechatkit/internal/tenant"
)

const (
	DefaultBaseURL = "https://qyapi.weixin.qq.com"

	getTokenPath       = "/cgi-bin/gettoken"
	getJSAPITicketPath = "/cgi-bin/get_jsapi_ticket"
	getAgentTicketPath = "/cgi-bin/ticket/get"
)

// Config 企业微信应用配置
type Config struct {
	// CorpID 企业 ID（必填）
	CorpID string
	// CorpSecret 应用的凭证密钥（必填）
	CorpSecret string
	// AgentID 应用 ID，发送应用消息与 wx.agentConfig 时需要
	AgentID int64
	// Token 与 EncodingAESKey 用于接收回调消息
	Token          string
	EncodingAESKey string

	Cache              core.Cache
	CachePrefix        string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	Logger             *slog.Logger
	// BaseURL API 地址（可选，默认 https://qyapi.weixin.qq.com）
	BaseURL            string
	RetryCodes         []int
	OnCredentialUpdate core.UpdateHook
	Recorder           core.Recorder
	Clock              func() time.Time
}

// Validate 校验企业微信配置
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.CorpID) == "" {
		return fmt.Errorf("corpid is required")
	}
	if strings.TrimSpace(cfg.CorpSecret) == "" {
		return fmt.Errorf("corpsecret is required")
	}
	if cfg.AgentID < 0 {
		return fmt.Errorf("agentid must not be negative")
	}
	return nil
}

// TenantID 凭证仓库中的租户标识
// 同一企业下不同应用的 access_token 互相独立，因此按 corpid/agentid 区分。
func (cfg Config) TenantID() string {
	if cfg.AgentID == 0 {
		return cfg.CorpID
	}
	return cfg.CorpID + "/" + strconv.FormatInt(cfg.AgentID, 10)
}

// Client 企业微信应用客户端
type Client struct {
	cfg     Config
	kit     *tenant.Kit
	crypter *utils.MessageCrypter
}

// New 创建企业微信应用客户端
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid work config: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	kit, err := tenant.New(tenant.Options{
		Tenant:             cfg.TenantID(),
		BaseURL:            cfg.BaseURL,
		CachePrefix:        cfg.CachePrefix,
		Cache:              cfg.Cache,
		HTTPClient:         cfg.HTTPClient,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             cfg.Logger.With(slog.String("product", "work")),
		RetryCodes:         cfg.RetryCodes,
		OnUpdate:           cfg.OnCredentialUpdate,
		Recorder:           cfg.Recorder,
		Clock:              cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	err = kit.Register(map[string]core.CredentialFetcher{
		core.CredentialAccessToken: kit.AccessTokenFetcher(getTokenPath, map[string]string{
			"corpid":     cfg.CorpID,
			"corpsecret": cfg.CorpSecret,
		}),
		core.CredentialJSAPITicket:      kit.TicketFetcher(getJSAPITicketPath, nil),
		core.CredentialAgentJSAPITicket: kit.TicketFetcher(getAgentTicketPath, map[string]string{"type": "agent_config"}),
	})
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, kit: kit}
	if cfg.EncodingAESKey != "" {
		c.crypter, err = utils.NewMessageCrypter(cfg.Token, cfg.EncodingAESKey, cfg.CorpID)
		if err != nil {
			return nil, fmt.Errorf("invalid work config: %w", err)
		}
	}
	return c, nil
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

// AccessToken 获取应用 access_token
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.kit.Store.Get(ctx, core.CredentialAccessToken)
}

func (c *Client) LastError() *core.WechatError {
	return c.kit.API.LastError()
}

type TypedRequest[T any] = core.TypedRequest[T]

// Request 创建类型化请求，默认附加 access_token
func Request[T any](c *Client) *TypedRequest[T] {
	return core.NewTypedRequest[T](c.kit.API)
}
