package officialaccount

import (
	"context"
	"encoding/json"
	"fmt"
)

// MenuButton 自定义菜单按钮
type MenuButton struct {
	Type      string       `json:"type,omitempty"`
	Name      string       `json:"name"`
	Key       string       `json:"key,omitempty"`
	URL       string       `json:"url,omitempty"`
	MediaID   string       `json:"media_id,omitempty"`
	AppID     string       `json:"appid,omitempty"`
	PagePath  string       `json:"pagepath,omitempty"`
	SubButton []MenuButton `json:"sub_button,omitempty"`
}

// CreateMenu 创建自定义菜单
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/Custom_Menus/Creating_Custom-Defined_Menu.html
func (c *Client) CreateMenu(ctx context.Context, buttons []MenuButton) error {
	if len(buttons) == 0 {
		return fmt.Errorf("buttons are required")
	}
	_, err := c.kit.API.Request().
		Path("/cgi-bin/menu/create").
		Body(map[string]any{"button": buttons}).
		Post(ctx)
	return err
}

// GetMenu 查询自定义菜单，返回原始 JSON
func (c *Client) GetMenu(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.kit.API.Request().Path("/cgi-bin/menu/get").Get(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// DeleteMenu 删除自定义菜单
func (c *Client) DeleteMenu(ctx context.Context) error {
	_, err := c.kit.API.Request().Path("/cgi-bin/menu/delete").Get(ctx)
	return err
}
