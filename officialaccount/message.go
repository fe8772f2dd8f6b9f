package officialaccount

import (
	"context"
	"fmt"
)

// CustomMessage 客服消息，Content 按 MsgType 放入对应字段，例如 {"content": "hello"}
type CustomMessage struct {
	ToUser  string
	MsgType string
	Content map[string]any
}

// SendCustomMessage 发送客服消息
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/Message_Management/Service_Center_messages.html
func (c *Client) SendCustomMessage(ctx context.Context, msg CustomMessage) error {
	if msg.ToUser == "" || msg.MsgType == "" {
		return fmt.Errorf("touser and msgtype are required")
	}

	_, err := c.kit.API.Request().
		Path("/cgi-bin/message/custom/send").
		Body(map[string]any{
			"touser":    msg.ToUser,
			"msgtype":   msg.MsgType,
			msg.MsgType: msg.Content,
		}).
		Post(ctx)
	return err
}

// TemplateMessage 模板消息
type TemplateMessage struct {
	ToUser      string                       `json:"touser"`
	TemplateID  string                       `json:"template_id"`
	URL         string                       `json:"url,omitempty"`
	MiniProgram *TemplateMiniProgram         `json:"miniprogram,omitempty"`
	Data        map[string]TemplateDataValue `json:"data"`
	ClientMsgID string                       `json:"client_msg_id,omitempty"`
}

type TemplateMiniProgram struct {
	AppID    string `json:"appid"`
	PagePath string `json:"pagepath,omitempty"`
}

type TemplateDataValue struct {
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

type SendTemplateMessageResponse struct {
	MsgID int64 `json:"msgid"`
}

// SendTemplateMessage 发送模板消息
// 接口文档: https://developers.weixin.qq.com/doc/offiaccount/Message_Management/Template_Message_Interface.html
func (c *Client) SendTemplateMessage(ctx context.Context, msg TemplateMessage) (*SendTemplateMessageResponse, error) {
	if msg.ToUser == "" || msg.TemplateID == "" {
		return nil, fmt.Errorf("touser and template_id are required")
	}

	resp, err := Request[SendTemplateMessageResponse](c).
		Path("/cgi-bin/message/template/send").
		Body(msg).
		Post(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
