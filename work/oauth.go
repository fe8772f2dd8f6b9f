package work

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const oauth2AuthorizeURL = "https://open.weixin.qq.com/connect/oauth2/authorize"

// OAuth2AuthorizeURL 构造网页授权链接
// scope 为空时使用 snsapi_base；snsapi_privateinfo 需要 agentid。
func (c *Client) OAuth2AuthorizeURL(redirectURI, scope, state string) string {
	if scope == "" {
		scope = "snsapi_base"
	}
	u := oauth2AuthorizeURL +
		"?appid=" + url.QueryEscape(c.cfg.CorpID) +
		"&redirect_uri=" + url.QueryEscape(redirectURI) +
		"&response_type=code" +
		"&scope=" + url.QueryEscape(scope) +
		"&state=" + url.QueryEscape(state)
	if c.cfg.AgentID != 0 {
		u += "&agentid=" + strconv.FormatInt(c.cfg.AgentID, 10)
	}
	return u + "#wechat_redirect"
}

// UserIdentity 网页授权得到的访问用户身份
// 企业成员返回 UserID，非企业成员返回 OpenID。
type UserIdentity struct {
	UserID         string `json:"userid,omitempty"`
	UserTicket     string `json:"user_ticket,omitempty"`
	OpenID         string `json:"openid,omitempty"`
	ExternalUserID string `json:"external_userid,omitempty"`
}

// GetUserInfoByCode 通过 OAuth2 code 获取访问用户身份
func (c *Client) GetUserInfoByCode(ctx context.Context, code string) (*UserIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	resp, err := Request[UserIdentity](c).Path("/cgi-bin/auth/getuserinfo").Query("code", code).Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
