package work

import (
	"context"
	"fmt"
)

// Message 应用消息，Content 按 MsgType 放入对应字段
type Message struct {
	ToUser  string
	ToParty string
	ToTag   string
	MsgType string
	Content map[string]any
	Safe    bool
}

// SendMessageResponse 发送结果，无效的接收人不会导致整体失败
type SendMessageResponse struct {
	InvalidUser  string `json:"invaliduser"`
	InvalidParty string `json:"invalidparty"`
	InvalidTag   string `json:"invalidtag"`
	MsgID        string `json:"msgid"`
}

// SendMessage 发送应用消息
// 接口文档: https://developer.work.weixin.qq.com/document/path/90236
func (c *Client) SendMessage(ctx context.Context, msg Message) (*SendMessageResponse, error) {
	if msg.ToUser == "" && msg.ToParty == "" && msg.ToTag == "" {
		return nil, fmt.Errorf("at least one of touser, toparty, totag is required")
	}
	if msg.MsgType == "" {
		return nil, fmt.Errorf("msgtype is required")
	}

	body := map[string]any{
		"msgtype":   msg.MsgType,
		"agentid":   c.cfg.AgentID,
		msg.MsgType: msg.Content,
	}
	if msg.ToUser != "" {
		body["touser"] = msg.ToUser
	}
	if msg.ToParty != "" {
		body["toparty"] = msg.ToParty
	}
	if msg.ToTag != "" {
		body["totag"] = msg.ToTag
	}
	if msg.Safe {
		body["safe"] = 1
	}

	resp, err := Request[SendMessageResponse](c).Path("/cgi-bin/message/send").Body(body).Post(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
