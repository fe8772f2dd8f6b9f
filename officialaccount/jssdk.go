package officialaccount

import (
	"context"
	"fmt"

	"github.com/ShinyNito/wechatkit/internal/tenant"
)

// JssdkSignRequest JS-SDK 签名请求参数
type JssdkSignRequest struct {
	// URL 当前网页的完整 URL，# 及其后面的部分会被去掉
	URL string
}

// JssdkSignResponse JS-SDK 签名响应结果
type JssdkSignResponse struct {
	// AppID 公众号 AppID
	AppID string `json:"appId"`
	// Timestamp 时间戳（秒）
	Timestamp int64 `json:"timestamp"`
	// NonceStr 随机字符串
	NonceStr string `json:"nonceStr"`
	// Signature 签名
	Signature string `json:"signature"`
}

// GetJssdkSign 生成 JS-SDK 签名
// 用于前端调用 wx.config 时所需的签名参数
//
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/OA_Web_Apps/JS-SDK.html#62
//
// 签名算法:
//  1. 获取 jsapi_ticket
//  2. 生成随机字符串 noncestr
//  3. 获取当前时间戳 timestamp
//  4. 按照固定格式拼接字符串并做 SHA1 签名
//
// 示例:
//
//	resp, err := client.GetJssdkSign(ctx, officialaccount.JssdkSignRequest{
//	    URL: "https://example.com/path",
//	})
//	if err != nil {
//	    return err
//	}
//	// 返回给前端用于 wx.config
func (c *Client) GetJssdkSign(ctx context.Context, req JssdkSignRequest) (*JssdkSignResponse, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	ticket, err := c.GetTicket(ctx, GetTicketRequest{Type: TicketTypeJSAPI})
	if err != nil {
		return nil, fmt.Errorf("get jsapi_ticket: %w", err)
	}

	sign, err := tenant.SignJSAPI(ticket.Ticket, req.URL, c.cfg.Clock())
	if err != nil {
		return nil, err
	}

	return &JssdkSignResponse{
		AppID:     c.cfg.AppID,
		Timestamp: sign.Timestamp,
		NonceStr:  sign.NonceStr,
		Signature: sign.Signature,
	}, nil
}

// JSAPIConfigRequest wx.config 参数
type JSAPIConfigRequest struct {
	URL      string
	APIList  []string
	OpenTags []string
	Debug    bool
}

// JSAPIConfig 可直接序列化后交给前端 wx.config 的配置
type JSAPIConfig struct {
	Debug     bool     `json:"debug"`
	AppID     string   `json:"appId"`
	Timestamp int64    `json:"timestamp"`
	NonceStr  string   `json:"nonceStr"`
	Signature string   `json:"signature"`
	JSAPIList []string `json:"jsApiList"`
	OpenTags  []string `json:"openTagList,omitempty"`
}

// JSAPIConfig 生成 wx.config 配置
func (c *Client) JSAPIConfig(ctx context.Context, req JSAPIConfigRequest) (*JSAPIConfig, error) {
	sign, err := c.GetJssdkSign(ctx, JssdkSignRequest{URL: req.URL})
	if err != nil {
		return nil, err
	}

	apiList := req.APIList
	if apiList == nil {
		apiList = []string{}
	}
	return &JSAPIConfig{
		Debug:     req.Debug,
		AppID:     sign.AppID,
		Timestamp: sign.Timestamp,
		NonceStr:  sign.NonceStr,
		Signature: sign.Signature,
		JSAPIList: apiList,
		OpenTags:  req.OpenTags,
	}, nil
}
