package officialaccount

import (
	"context"
	"fmt"
)

// CallbackIPResponse 微信服务器 IP 列表
type CallbackIPResponse struct {
	IPList []string `json:"ip_list"`
}

// GetCallbackIP 获取微信回调服务器 IP 列表
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/Basic_Information/Get_the_WeChat_server_IP_address.html
func (c *Client) GetCallbackIP(ctx context.Context) (*CallbackIPResponse, error) {
	resp, err := Request[CallbackIPResponse](c).Path("/cgi-bin/getcallbackip").Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserInfoRequest 获取用户基本信息请求
type UserInfoRequest struct {
	OpenID string
	// Lang 返回国家地区语言版本，默认 zh_CN
	Lang string
}

// UserInfo 用户基本信息
type UserInfo struct {
	Subscribe      int    `json:"subscribe"`
	OpenID         string `json:"openid"`
	Language       string `json:"language"`
	SubscribeTime  int64  `json:"subscribe_time"`
	UnionID        string `json:"unionid,omitempty"`
	Remark         string `json:"remark"`
	GroupID        int    `json:"groupid"`
	TagIDList      []int  `json:"tagid_list"`
	SubscribeScene string `json:"subscribe_scene"`
	QRScene        int    `json:"qr_scene"`
	QRSceneStr     string `json:"qr_scene_str"`
}

// GetUserInfo 获取用户基本信息（包括 UnionID 机制）
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/User_Management/Get_users_basic_information_UnionID.html
func (c *Client) GetUserInfo(ctx context.Context, req UserInfoRequest) (*UserInfo, error) {
	if req.OpenID == "" {
		return nil, fmt.Errorf("openid is required")
	}
	lang := req.Lang
	if lang == "" {
		lang = "zh_CN"
	}

	resp, err := Request[UserInfo](c).
		Path("/cgi-bin/user/info").
		Query("openid", req.OpenID).
		Query("lang", lang).
		Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserListResponse 关注者列表
type UserListResponse struct {
	Total int `json:"total"`
	Count int `json:"count"`
	Data  struct {
		OpenID []string `json:"openid"`
	} `json:"data"`
	NextOpenID string `json:"next_openid"`
}

// GetUserList 获取关注者列表，nextOpenID 为空时从头开始
func (c *Client) GetUserList(ctx context.Context, nextOpenID string) (*UserListResponse, error) {
	req := Request[UserListResponse](c).Path("/cgi-bin/user/get")
	if nextOpenID != "" {
		req.Query("next_openid", nextOpenID)
	}
	resp, err := req.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
