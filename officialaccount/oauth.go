package officialaccount

import (
	"context"
	"fmt"
	"net/url"
)

const oauth2AuthorizeURL = "https://open.weixin.qq.com/connect/oauth2/authorize"

type OAuthScope string

const (
	OAuthScopeBase     OAuthScope = "snsapi_base"
	OAuthScopeUserInfo OAuthScope = "snsapi_userinfo"
)

// OAuth2AuthorizeURL 生成网页授权跳转地址
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/OA_Web_Apps/Wechat_webpage_authorization.html
func (c *Client) OAuth2AuthorizeURL(redirectURI string, scope OAuthScope, state string) string {
	if scope == "" {
		scope = OAuthScopeBase
	}
	// 参数顺序固定，微信会校验
	return oauth2AuthorizeURL +
		"?appid=" + url.QueryEscape(c.cfg.AppID) +
		"&redirect_uri=" + url.QueryEscape(redirectURI) +
		"&response_type=code" +
		"&scope=" + string(scope) +
		"&state=" + url.QueryEscape(state) +
		"#wechat_redirect"
}

// OAuth2Token 网页授权 access_token，与基础 access_token 不同
type OAuth2Token struct {
	AccessToken    string `json:"access_token"`
	ExpiresIn      int    `json:"expires_in"`
	RefreshToken   string `json:"refresh_token"`
	OpenID         string `json:"openid"`
	Scope          string `json:"scope"`
	IsSnapshotUser int    `json:"is_snapshotuser,omitempty"`
	UnionID        string `json:"unionid,omitempty"`
}

// OAuth2AccessToken 通过 code 换取网页授权 access_token
func (c *Client) OAuth2AccessToken(ctx context.Context, code string) (*OAuth2Token, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	resp, err := Request[OAuth2Token](c).
		Path("/sns/oauth2/access_token").
		Query("appid", c.cfg.AppID).
		Query("secret", c.cfg.AppSecret).
		Query("code", code).
		Query("grant_type", "authorization_code").
		WithoutToken().
		Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// OAuth2UserInfo 网页授权拉取的用户信息
type OAuth2UserInfo struct {
	OpenID     string   `json:"openid"`
	Nickname   string   `json:"nickname"`
	Sex        int      `json:"sex"`
	Province   string   `json:"province"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	HeadImgURL string   `json:"headimgurl"`
	Privilege  []string `json:"privilege"`
	UnionID    string   `json:"unionid,omitempty"`
}

// OAuth2GetUserInfo 使用网页授权 access_token 拉取用户信息（需 snsapi_userinfo）
func (c *Client) OAuth2GetUserInfo(ctx context.Context, token *OAuth2Token) (*OAuth2UserInfo, error) {
	if token == nil || token.AccessToken == "" || token.OpenID == "" {
		return nil, fmt.Errorf("oauth2 access_token and openid are required")
	}

	// 网页授权 token 不由凭证仓库管理，直接作为参数传入
	resp, err := Request[OAuth2UserInfo](c).
		Path("/sns/userinfo").
		Query("access_token", token.AccessToken).
		Query("openid", token.OpenID).
		Query("lang", "zh_CN").
		WithoutToken().
		Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
