// Package tenant 组装单个租户（公众号、企业微信应用、小程序）的凭证仓库与 API 客户端。
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ShinyNito/wechatkit/core"
)

// Options 租户公共配置
type Options struct {
	Tenant             string
	BaseURL            string
	CachePrefix        string
	Cache              core.Cache
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	Logger             *slog.Logger
	RetryCodes         []int
	OnUpdate           core.UpdateHook
	Recorder           core.Recorder
	Clock              func() time.Time
	ExpiryMargin       time.Duration
}

// Kit 租户运行时组件
type Kit struct {
	Store *core.CredentialStore
	// Raw 不附加凭证的客户端，用于获取 access_token 本身
	Raw *core.Client
	// API 附加凭证并在凭证失效时自动重试的客户端
	API *core.Client
}

// New 创建租户组件
func New(opts Options) (*Kit, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := core.NewCredentialStore(core.CredentialStoreConfig{
		Tenant:       opts.Tenant,
		Prefix:       opts.CachePrefix,
		Cache:        opts.Cache,
		Logger:       logger,
		Clock:        opts.Clock,
		ExpiryMargin: opts.ExpiryMargin,
		OnUpdate:     opts.OnUpdate,
		Recorder:     opts.Recorder,
	})
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		if opts.InsecureSkipVerify {
			logger.Warn("tls certificate verification disabled", slog.String("tenant", opts.Tenant))
		}
		httpClient = core.NewHTTPClient(core.DefaultTimeout, opts.InsecureSkipVerify)
	}

	raw, err := core.NewClient(core.ClientConfig{
		BaseURL:    opts.BaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
		Recorder:   opts.Recorder,
	})
	if err != nil {
		return nil, err
	}

	api, err := core.NewClient(core.ClientConfig{
		BaseURL:     opts.BaseURL,
		HTTPClient:  httpClient,
		Credentials: store,
		RetryCodes:  opts.RetryCodes,
		Logger:      logger,
		Recorder:    opts.Recorder,
	})
	if err != nil {
		return nil, err
	}

	return &Kit{Store: store, Raw: raw, API: api}, nil
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// AccessTokenFetcher 通过不带凭证的 GET 请求获取 access_token
func (k *Kit) AccessTokenFetcher(path string, query map[string]string) core.CredentialFetcher {
	return func(ctx context.Context) (core.FetchResult, error) {
		resp, err := k.Raw.Request().Path(path).QueryMap(query).WithoutToken().Get(ctx)
		if err != nil {
			return core.FetchResult{}, fmt.Errorf("request access token: %w", err)
		}
		var out accessTokenResponse
		if err := resp.Decode(&out); err != nil {
			return core.FetchResult{}, err
		}
		return core.FetchResult{Value: out.AccessToken, ExpiresIn: out.ExpiresIn, Raw: resp.Body}, nil
	}
}

// TicketFetcher 携带 access_token 获取 ticket，access_token 失效时按重试协议刷新一次
func (k *Kit) TicketFetcher(path string, query map[string]string) core.CredentialFetcher {
	return func(ctx context.Context) (core.FetchResult, error) {
		resp, err := k.API.Request().Path(path).QueryMap(query).Get(ctx)
		if err != nil {
			return core.FetchResult{}, fmt.Errorf("request ticket: %w", err)
		}
		var out ticketResponse
		if err := resp.Decode(&out); err != nil {
			return core.FetchResult{}, err
		}
		return core.FetchResult{Value: out.Ticket, ExpiresIn: out.ExpiresIn, Raw: resp.Body}, nil
	}
}

// Register 批量注册凭证
func (k *Kit) Register(fetchers map[string]core.CredentialFetcher) error {
	for name, fetcher := range fetchers {
		if err := k.Store.Register(name, fetcher); err != nil {
			return err
		}
	}
	return nil
}

// StripFragment 去掉 URL 中 # 及其后的部分
func StripFragment(rawURL string) string {
	if idx := strings.Index(rawURL, "#"); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}
