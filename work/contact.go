package work

import (
	"context"
	"fmt"
	"strconv"
)

type CallbackIPResponse struct {
	IPList []string `json:"ip_list"`
}

// GetCallbackIP 获取企业微信回调 IP 段
func (c *Client) GetCallbackIP(ctx context.Context) (*CallbackIPResponse, error) {
	resp, err := Request[CallbackIPResponse](c).Path("/cgi-bin/getcallbackip").Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// User 成员信息
type User struct {
	UserID         string  `json:"userid"`
	Name           string  `json:"name"`
	Department     []int64 `json:"department"`
	Position       string  `json:"position,omitempty"`
	Mobile         string  `json:"mobile,omitempty"`
	Gender         string  `json:"gender,omitempty"`
	Email          string  `json:"email,omitempty"`
	Avatar         string  `json:"avatar,omitempty"`
	Status         int     `json:"status"`
	MainDepartment int64   `json:"main_department,omitempty"`
}

// GetUser 读取成员
// 接口文档: https://developer.work.weixin.qq.com/document/path/90196
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("userid is required")
	}
	resp, err := Request[User](c).Path("/cgi-bin/user/get").Query("userid", userID).Get(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type Department struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	NameEN   string `json:"name_en,omitempty"`
	ParentID int64  `json:"parentid"`
	Order    int64  `json:"order"`
}

type departmentListResponse struct {
	Department []Department `json:"department"`
}

// GetDepartmentList 获取部门列表，id 为 0 时返回全量
func (c *Client) GetDepartmentList(ctx context.Context, id int64) ([]Department, error) {
	req := Request[departmentListResponse](c).Path("/cgi-bin/department/list")
	if id > 0 {
		req.Query("id", strconv.FormatInt(id, 10))
	}
	resp, err := req.Get(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Department, nil
}
