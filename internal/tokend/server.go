package tokend

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/metrics"
)

// APIKeyHeader 调用方通过该请求头携带 API Key
const APIKeyHeader = "X-API-Key"

// ServerOptions HTTP 服务配置
type ServerOptions struct {
	// APIKeys 为空时不校验调用方
	APIKeys  []string
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Clock    func() time.Time
}

// CredentialResponse 凭证查询结果
type CredentialResponse struct {
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// ErrorResponse 错误响应；ErrCode 为微信返回的错误码
type ErrorResponse struct {
	Error   string `json:"error"`
	ErrCode int    `json:"errcode,omitempty"`
}

// TenantSummary 租户列表项
type TenantSummary struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Tenant      string   `json:"tenant"`
	Credentials []string `json:"credentials"`
}

type handler struct {
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer 创建 HTTP 服务
func NewServer(registry *Registry, opts ServerOptions) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	h := &handler{registry: registry, logger: opts.Logger, now: opts.Clock}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(opts.Logger))

	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(opts.Gatherer)))

	v1 := e.Group("/v1")
	if len(opts.APIKeys) > 0 {
		v1.Use(apiKeyAuth(opts.APIKeys))
	} else {
		opts.Logger.Warn("no api keys configured, credential endpoints are unauthenticated")
	}
	v1.GET("/tenants", h.listTenants)
	v1.GET("/tenants/:tenant/credentials/:name", h.getCredential)
	v1.POST("/tenants/:tenant/credentials/:name/refresh", h.refreshCredential)
	v1.GET("/tenants/:tenant/jsapi-config", h.jsapiConfig)

	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}

func apiKeyAuth(keys []string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + APIKeyHeader,
		Validator: func(key string, _ echo.Context) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid api key"})
		},
	})
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listTenants(c echo.Context) error {
	tenants := h.registry.Tenants()
	out := make([]TenantSummary, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, TenantSummary{
			ID:          t.ID,
			Kind:        t.Kind,
			Tenant:      t.Store.Tenant(),
			Credentials: t.Store.Names(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handler) getCredential(c echo.Context) error {
	t, err := h.registry.Get(c.Param("tenant"))
	if err != nil {
		return h.fail(c, err)
	}
	name := c.Param("name")
	cred, err := t.Store.Lookup(c.Request().Context(), name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.credentialResponse(t.ID, name, cred))
}

func (h *handler) refreshCredential(c echo.Context) error {
	t, err := h.registry.Get(c.Param("tenant"))
	if err != nil {
		return h.fail(c, err)
	}
	name := c.Param("name")
	ctx := c.Request().Context()
	value, err := t.Store.Refresh(ctx, name)
	if err != nil {
		return h.fail(c, err)
	}
	cred, ok := t.Store.Peek(name)
	if !ok || cred.Value != value {
		// 并发刷新已写入更新的值，以槽位为准
		cred, err = t.Store.Lookup(ctx, name)
		if err != nil {
			return h.fail(c, err)
		}
	}
	h.logger.Info("credential refreshed via api",
		zap.String("tenant_id", t.ID),
		zap.String("name", name),
		zap.String("remote_ip", c.RealIP()),
	)
	return c.JSON(http.StatusOK, h.credentialResponse(t.ID, name, cred))
}

func (h *handler) jsapiConfig(c echo.Context) error {
	pageURL := c.QueryParam("url")
	if pageURL == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url is required"})
	}
	t, err := h.registry.Get(c.Param("tenant"))
	if err != nil {
		return h.fail(c, err)
	}
	cfg, err := t.JSAPIConfig(c.Request().Context(), pageURL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *handler) credentialResponse(tenantID, name string, cred core.Credential) CredentialResponse {
	return CredentialResponse{
		Tenant:    tenantID,
		Name:      name,
		Value:     cred.Value,
		ExpiresAt: cred.ExpiresAt.UTC(),
		ExpiresIn: max(int64(cred.ExpiresAt.Sub(h.now())/time.Second), 0),
	}
}

// fail 将领域错误映射为 HTTP 状态码
func (h *handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, ErrUnknownTenant), errors.Is(err, core.ErrUnknownCredential):
		status = http.StatusNotFound
	case errors.Is(err, ErrJSAPIUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case core.IsFetchError(err):
		status = http.StatusBadGateway
	default:
		if _, ok := errors.AsType[*core.TransportError](err); ok {
			status = http.StatusBadGateway
		}
	}
	if we, ok := errors.AsType[*core.WechatError](err); ok {
		resp.ErrCode = we.ErrCode
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Warn("credential request failed",
			zap.String("path", c.Path()),
			zap.String("tenant_id", c.Param("tenant")),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.JSON(status, resp)
}
