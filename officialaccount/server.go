package officialaccount

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/ShinyNito/wechatkit/core/utils"
)

// ErrMessageCryptoDisabled 未配置 EncodingAESKey
var ErrMessageCryptoDisabled = errors.New("message encryption is not configured")

// CheckSignature 校验服务器配置回调的签名
func (c *Client) CheckSignature(signature, timestamp, nonce string) bool {
	if c.cfg.Token == "" {
		return false
	}
	return utils.VerifySignature(signature, timestamp, nonce, c.cfg.Token)
}

// Message 回调消息中的公共字段，具体字段按 MsgType/Event 自行解析 Raw
type Message struct {
	ToUserName   string `xml:"ToUserName"`
	FromUserName string `xml:"FromUserName"`
	CreateTime   int64  `xml:"CreateTime"`
	MsgType      string `xml:"MsgType"`
	Event        string `xml:"Event,omitempty"`
	EventKey     string `xml:"EventKey,omitempty"`
	Content      string `xml:"Content,omitempty"`
	MsgID        int64  `xml:"MsgId,omitempty"`

	Raw []byte `xml:"-"`
}

// ParseMessage 解析明文回调消息
func ParseMessage(body []byte) (*Message, error) {
	var msg Message
	if err := xml.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	msg.Raw = body
	return &msg, nil
}

// DecryptMessage 校验 msg_signature 并解密安全模式下的回调请求体
func (c *Client) DecryptMessage(body []byte, msgSignature, timestamp, nonce string) (*Message, error) {
	if c.crypter == nil {
		return nil, ErrMessageCryptoDisabled
	}
	plaintext, err := c.crypter.OpenEnvelope(body, msgSignature, timestamp, nonce)
	if err != nil {
		return nil, err
	}
	return ParseMessage(plaintext)
}

// EncryptMessage 加密被动回复消息
func (c *Client) EncryptMessage(reply []byte, timestamp, nonce string) ([]byte, error) {
	if c.crypter == nil {
		return nil, ErrMessageCryptoDisabled
	}
	return c.crypter.SealEnvelope(reply, timestamp, nonce)
}
