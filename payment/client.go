package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/core/utils"
)

const (
	DefaultBaseURL = "https://api.mch.weixin.qq.com"

	unifiedOrderPath = "/pay/unifiedorder"
	micropayPath     = "/pay/micropay"
	orderQueryPath   = "/pay/orderquery"

	xmlContentType = "text/xml; charset=utf-8"
)

// Config 商户配置
type Config struct {
	// AppID 发起支付的公众号或小程序 AppID
	AppID string
	// MchID 商户号
	MchID string
	// APIKey 商户平台设置的 API 密钥，仅用于签名，不会发送
	APIKey string
	// SignType 默认 MD5
	SignType SignType

	BaseURL            string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	Logger             *slog.Logger
	Recorder           core.Recorder
	Clock              func() time.Time
}

func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("appid is required")
	}
	if strings.TrimSpace(cfg.MchID) == "" {
		return fmt.Errorf("mch_id is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	switch cfg.SignType {
	case "", SignTypeMD5, SignTypeHMACSHA256:
		return nil
	default:
		return fmt.Errorf("unsupported sign type %q", cfg.SignType)
	}
}

// Client 支付客户端，无状态，可并发使用
type Client struct {
	cfg    Config
	api    *core.Client
	logger *slog.Logger
}

// New 创建支付客户端
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment config: %w", err)
	}
	if cfg.SignType == "" {
		cfg.SignType = SignTypeMD5
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
	logger := cfg.Logger.With(slog.String("product", "payment"), slog.String("mch_id", cfg.MchID))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.InsecureSkipVerify {
			logger.Warn("tls certificate verification disabled")
		}
		httpClient = core.NewHTTPClient(core.DefaultTimeout, cfg.InsecureSkipVerify)
	}

	api, err := core.NewClient(core.ClientConfig{
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
		Recorder:   cfg.Recorder,
	})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, api: api, logger: logger}, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// Sign 使用商户密钥与配置的签名方式签名
func (c *Client) Sign(params Params) (string, error) {
	return Sign(params, c.cfg.APIKey, c.cfg.SignType)
}

// Do 补齐 appid、mch_id、nonce_str 与签名后调用支付接口，
// 校验通信结果、业务结果与响应签名。
func (c *Client) Do(ctx context.Context, path string, params Params) (Params, error) {
	req := make(Params, len(params)+5)
	for key, value := range params {
		if value != "" {
			req[key] = value
		}
	}
	req["appid"] = c.cfg.AppID
	req["mch_id"] = c.cfg.MchID
	if c.cfg.SignType != SignTypeMD5 {
		req["sign_type"] = string(c.cfg.SignType)
	}
	nonce, err := utils.RandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	req["nonce_str"] = nonce
	if req["sign"], err = c.Sign(req); err != nil {
		return nil, err
	}

	resp, err := c.api.Request().
		Path(path).
		WithoutToken().
		ContentType(xmlContentType).
		Body(EncodeXML(req)).
		Post(ctx)
	if err != nil {
		return nil, err
	}

	result, err := DecodeXML(resp.Body)
	if err != nil {
		return nil, core.NewResponseParseError(resp.Body, err)
	}
	// 通信失败时响应不带签名
	if result["return_code"] == codeSuccess && result["sign"] != "" {
		if err := VerifySign(result, c.cfg.APIKey, c.cfg.SignType); err != nil {
			return nil, err
		}
	}
	if err := checkResult(result); err != nil {
		c.logger.WarnContext(ctx, "payment request failed",
			slog.String("path", path),
			slog.String("out_trade_no", req["out_trade_no"]),
			slog.Any("error", err),
		)
		return result, err
	}
	return result, nil
}
