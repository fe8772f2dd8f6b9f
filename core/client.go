package core

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultBaseURL     = "https://api.weixin.qq.com"
	DefaultTimeout     = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

// ClientConfig API 客户端配置
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client  // 为空时使用 NewHTTPClient 创建
	Timeout    time.Duration // 仅在 HTTPClient 为空时生效，默认 DefaultTimeout
	// InsecureSkipVerify 关闭 TLS 证书校验，仅在 HTTPClient 为空时生效。
	// 只应在调试代理等受控环境中使用。
	InsecureSkipVerify bool
	Credentials        CredentialProvider
	RetryCodes         []int // 触发刷新凭证并重试一次的错误码，默认 DefaultRetryCodes
	Logger             *slog.Logger
	Recorder           Recorder
}

// Client 微信 API 客户端
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	credentials CredentialProvider
	retryCodes  []int
	logger      *slog.Logger
	recorder    Recorder

	lastError atomic.Pointer[WechatError]
}

// NewClient 创建 API 客户端
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsedBaseURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		if cfg.InsecureSkipVerify {
			logger.Warn("tls certificate verification disabled", slog.String("base_url", baseURL))
		}
		httpClient = NewHTTPClient(timeout, cfg.InsecureSkipVerify)
	}

	retryCodes := cfg.RetryCodes
	if retryCodes == nil {
		retryCodes = DefaultRetryCodes
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     parsedBaseURL,
		credentials: cfg.Credentials,
		retryCodes:  slices.Clone(retryCodes),
		logger:      logger,
		recorder:    recorderOrNop(cfg.Recorder),
	}, nil
}

// NewHTTPClient 创建默认 HTTP 客户端：整体超时 timeout，连接超时 DefaultDialTimeout，TLS 1.2 起
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // 显式配置项
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Credentials 返回客户端使用的凭证提供者
func (c *Client) Credentials() CredentialProvider {
	return c.credentials
}

func (c *Client) Request() *RequestBuilder {
	return newRequestBuilder(c)
}

// LastError 返回最近一次响应中的非 0 errcode，未出现过时为 nil
func (c *Client) LastError() *WechatError {
	return c.lastError.Load()
}

func (c *Client) recordError(resp *Response) {
	c.lastError.Store(NewWechatError(resp.errCode, resp.errMsg))
}

func (c *Client) isRetryable(code int) bool {
	return slices.Contains(c.retryCodes, code)
}

func (c *Client) buildURL(path string, query map[string]string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path: %w", err)
	}

	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		values := u.Query()
		for key, value := range query {
			values.Set(key, value)
		}
		u.RawQuery = values.Encode()
	}

	return u.String(), nil
}

func (c *Client) logRequest(ctx context.Context, method, rawURL string, body []byte) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("url", RedactURLQuery(rawURL)),
	}
	if len(body) > 0 {
		attrs = append(attrs, slog.String("body", RedactJSONBody(body)))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "http request", attrs...)
}

func (c *Client) logResponse(ctx context.Context, resp *Response) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{slog.Int("status", resp.StatusCode)}
	switch {
	case resp.IsJSON():
		attrs = append(attrs, slog.String("body", RedactJSONBody(resp.Body)))
	case len(resp.Body) > 0:
		attrs = append(attrs, slog.Int("bytes", len(resp.Body)))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "http response", attrs...)
}
