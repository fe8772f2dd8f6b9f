package tokend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/miniprogram"
	"github.com/ShinyNito/wechatkit/officialaccount"
	"github.com/ShinyNito/wechatkit/work"
)

var (
	// ErrUnknownTenant 未配置的租户
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrJSAPIUnsupported 租户类型不支持 JS-SDK（小程序）
	ErrJSAPIUnsupported = errors.New("jsapi config not supported for this tenant")
)

// Tenant 已装配的租户
type Tenant struct {
	ID    string
	Kind  string
	Store *core.CredentialStore

	jsapi func(ctx context.Context, pageURL string) (any, error)
}

// JSAPIConfig 为页面生成 wx.config 参数
func (t *Tenant) JSAPIConfig(ctx context.Context, pageURL string) (any, error) {
	if t.jsapi == nil {
		return nil, ErrJSAPIUnsupported
	}
	return t.jsapi(ctx, pageURL)
}

// Deps 所有租户共享的组件
type Deps struct {
	Cache      core.Cache
	Recorder   core.Recorder
	OnUpdate   core.UpdateHook
	Secrets    SecretResolver
	HTTPClient *http.Client
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Registry 按配置 id 索引的租户集合，构建后只读
type Registry struct {
	tenants map[string]*Tenant
	order   []*Tenant
}

// NewRegistry 按配置逐个构建租户客户端
func NewRegistry(ctx context.Context, configs []TenantConfig, deps Deps) (*Registry, error) {
	if deps.Cache == nil {
		deps.Cache = core.NewMemoryCache()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Registry{tenants: make(map[string]*Tenant, len(configs))}
	for _, tc := range configs {
		if _, exists := r.tenants[tc.ID]; exists {
			return nil, fmt.Errorf("duplicate tenant %s", tc.ID)
		}
		t, err := buildTenant(ctx, tc, deps)
		if err != nil {
			return nil, err
		}
		r.tenants[tc.ID] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

func buildTenant(ctx context.Context, tc TenantConfig, deps Deps) (*Tenant, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	secret, err := resolveSecret(ctx, tc, deps.Secrets)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger.With(slog.String("tenant_id", tc.ID))

	switch tc.Kind {
	case KindOfficialAccount:
		c, err := officialaccount.New(officialaccount.Config{
			AppID:              tc.AppID,
			AppSecret:          secret,
			Cache:              deps.Cache,
			HTTPClient:         deps.HTTPClient,
			Logger:             logger,
			BaseURL:            tc.BaseURL,
			OnCredentialUpdate: deps.OnUpdate,
			Recorder:           deps.Recorder,
			Clock:              deps.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tc.ID, err)
		}
		return &Tenant{
			ID:    tc.ID,
			Kind:  tc.Kind,
			Store: c.Credentials(),
			jsapi: func(ctx context.Context, pageURL string) (any, error) {
				return c.JSAPIConfig(ctx, officialaccount.JSAPIConfigRequest{URL: pageURL})
			},
		}, nil

	case KindWork:
		c, err := work.New(work.Config{
			CorpID:             tc.CorpID,
			CorpSecret:         secret,
			AgentID:            tc.AgentID,
			Cache:              deps.Cache,
			HTTPClient:         deps.HTTPClient,
			Logger:             logger,
			BaseURL:            tc.BaseURL,
			OnCredentialUpdate: deps.OnUpdate,
			Recorder:           deps.Recorder,
			Clock:              deps.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tc.ID, err)
		}
		return &Tenant{
			ID:    tc.ID,
			Kind:  tc.Kind,
			Store: c.Credentials(),
			jsapi: func(ctx context.Context, pageURL string) (any, error) {
				return c.JSAPIConfig(ctx, pageURL, nil)
			},
		}, nil

	case KindMiniProgram:
		c, err := miniprogram.New(miniprogram.Config{
			AppID:              tc.AppID,
			AppSecret:          secret,
			Cache:              deps.Cache,
			HTTPClient:         deps.HTTPClient,
			Logger:             logger,
			BaseURL:            tc.BaseURL,
			OnCredentialUpdate: deps.OnUpdate,
			Recorder:           deps.Recorder,
			Clock:              deps.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tc.ID, err)
		}
		return &Tenant{ID: tc.ID, Kind: tc.Kind, Store: c.Credentials()}, nil
	}
	return nil, fmt.Errorf("tenant %s: unknown kind %q", tc.ID, tc.Kind)
}

// Get 按配置 id 查找租户
func (r *Registry) Get(id string) (*Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, id)
	}
	return t, nil
}

// Tenants 按配置顺序返回全部租户
func (r *Registry) Tenants() []*Tenant {
	return r.order
}
