package miniprogram

import (
	"context"
	"fmt"
)

// UnlimitedQRCodeRequest 获取不限制的小程序码
type UnlimitedQRCodeRequest struct {
	Scene      string `json:"scene"`
	Page       string `json:"page,omitempty"`
	CheckPath  *bool  `json:"check_path,omitempty"`
	EnvVersion string `json:"env_version,omitempty"`
	Width      int    `json:"width,omitempty"`
	IsHyaline  bool   `json:"is_hyaline,omitempty"`
}

// GetUnlimitedQRCode 获取小程序码，成功时返回图片二进制
// 接口文档: https://developers.weixin.qq.com/miniprogram/dev/OpenApiDoc/qrcode-link/qr-code/getUnlimitedQRCode.html
func (c *Client) GetUnlimitedQRCode(ctx context.Context, req UnlimitedQRCodeRequest) ([]byte, error) {
	if req.Scene == "" {
		return nil, fmt.Errorf("scene is required")
	}
	if len(req.Scene) > 32 {
		return nil, fmt.Errorf("scene exceeds 32 characters")
	}

	resp, err := c.kit.API.Request().Path("/wxa/getwxacodeunlimit").Body(req).Post(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SubscribeMessage 订阅消息
type SubscribeMessage struct {
	ToUser           string                       `json:"touser"`
	TemplateID       string                       `json:"template_id"`
	Page             string                       `json:"page,omitempty"`
	MiniProgramState string                       `json:"miniprogram_state,omitempty"`
	Lang             string                       `json:"lang,omitempty"`
	Data             map[string]SubscribeDataItem `json:"data"`
}

type SubscribeDataItem struct {
	Value string `json:"value"`
}

// SendSubscribeMessage 发送订阅消息
func (c *Client) SendSubscribeMessage(ctx context.Context, msg SubscribeMessage) error {
	if msg.ToUser == "" || msg.TemplateID == "" {
		return fmt.Errorf("touser and template_id are required")
	}
	_, err := c.kit.API.Request().Path("/cgi-bin/message/subscribe/send").Body(msg).Post(ctx)
	return err
}
