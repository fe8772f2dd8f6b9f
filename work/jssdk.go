package work

import (
	"context"
	"fmt"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/internal/tenant"
)

// JSAPIConfig wx.config 所需参数，appId 为企业 corpid
type JSAPIConfig struct {
	Debug     bool     `json:"debug"`
	AppID     string   `json:"appId"`
	Timestamp int64    `json:"timestamp"`
	NonceStr  string   `json:"nonceStr"`
	Signature string   `json:"signature"`
	JSAPIList []string `json:"jsApiList"`
}

// AgentConfig wx.agentConfig 所需参数
type AgentConfig struct {
	CorpID    string   `json:"corpid"`
	AgentID   int64    `json:"agentid"`
	Timestamp int64    `json:"timestamp"`
	NonceStr  string   `json:"nonceStr"`
	Signature string   `json:"signature"`
	JSAPIList []string `json:"jsApiList"`
}

// JSAPIConfig 使用企业 jsapi_ticket 生成 wx.config 配置
func (c *Client) JSAPIConfig(ctx context.Context, pageURL string, apiList []string) (*JSAPIConfig, error) {
	sign, err := c.sign(ctx, core.CredentialJSAPITicket, pageURL)
	if err != nil {
		return nil, err
	}
	return &JSAPIConfig{
		AppID:     c.cfg.CorpID,
		Timestamp: sign.Timestamp,
		NonceStr:  sign.NonceStr,
		Signature: sign.Signature,
		JSAPIList: nonNil(apiList),
	}, nil
}

// AgentConfig 使用应用 jsapi_ticket 生成 wx.agentConfig 配置
func (c *Client) AgentConfig(ctx context.Context, pageURL string, apiList []string) (*AgentConfig, error) {
	if c.cfg.AgentID == 0 {
		return nil, fmt.Errorf("agentid is required for agent config")
	}
	sign, err := c.sign(ctx, core.CredentialAgentJSAPITicket, pageURL)
	if err != nil {
		return nil, err
	}
	return &AgentConfig{
		CorpID:    c.cfg.CorpID,
		AgentID:   c.cfg.AgentID,
		Timestamp: sign.Timestamp,
		NonceStr:  sign.NonceStr,
		Signature: sign.Signature,
		JSAPIList: nonNil(apiList),
	}, nil
}

func (c *Client) sign(ctx context.Context, ticketName, pageURL string) (tenant.JSAPISign, error) {
	if pageURL == "" {
		return tenant.JSAPISign{}, fmt.Errorf("url is required")
	}
	ticket, err := c.kit.Store.Get(ctx, ticketName)
	if err != nil {
		return tenant.JSAPISign{}, fmt.Errorf("get %s: %w", ticketName, err)
	}
	return tenant.SignJSAPI(ticket, pageURL, c.cfg.Clock())
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
