package work

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/ShinyNito/wechatkit/core/utils"
)

// ErrMessageCryptoDisabled 未配置 EncodingAESKey
var ErrMessageCryptoDisabled = errors.New("message encryption is not configured")

// CallbackMessage 回调消息公共字段
type CallbackMessage struct {
	ToUserName   string `xml:"ToUserName"`
	FromUserName string `xml:"FromUserName"`
	CreateTime   int64  `xml:"CreateTime"`
	MsgType      string `xml:"MsgType"`
	Event        string `xml:"Event,omitempty"`
	Content      string `xml:"Content,omitempty"`
	MsgID        int64  `xml:"MsgId,omitempty"`
	AgentID      int64  `xml:"AgentID,omitempty"`

	Raw []byte `xml:"-"`
}

// VerifyURL 回调 URL 验证：校验签名并解密 echostr，返回需原样响应的明文
func (c *Client) VerifyURL(msgSignature, timestamp, nonce, echoStr string) ([]byte, error) {
	if c.crypter == nil {
		return nil, ErrMessageCryptoDisabled
	}
	if !utils.VerifyMsgSignature(msgSignature, timestamp, nonce, c.cfg.Token, echoStr) {
		return nil, utils.ErrSignatureMismatch
	}
	return c.crypter.Decrypt(echoStr)
}

// DecryptMessage 校验并解密回调消息
func (c *Client) DecryptMessage(body []byte, msgSignature, timestamp, nonce string) (*CallbackMessage, error) {
	if c.crypter == nil {
		return nil, ErrMessageCryptoDisabled
	}
	plaintext, err := c.crypter.OpenEnvelope(body, msgSignature, timestamp, nonce)
	if err != nil {
		return nil, err
	}
	var msg CallbackMessage
	if err := xml.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	msg.Raw = plaintext
	return &msg, nil
}

// EncryptMessage 加密被动回复消息
func (c *Client) EncryptMessage(reply []byte, timestamp, nonce string) ([]byte, error) {
	if c.crypter == nil {
		return nil, ErrMessageCryptoDisabled
	}
	return c.crypter.SealEnvelope(reply, timestamp, nonce)
}
