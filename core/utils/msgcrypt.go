package utils

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
)

// 消息加解密使用 32 字节块做 PKCS7 填充
const msgBlockSize = 32

var (
	// ErrInvalidEncodingAESKey EncodingAESKey 长度或编码无效
	ErrInvalidEncodingAESKey = errors.New("invalid encoding aes key")
	// ErrSignatureMismatch 消息签名校验失败
	ErrSignatureMismatch = errors.New("message signature mismatch")
	// ErrReceiverMismatch 解密后的 appid/corpid 与配置不符
	ErrReceiverMismatch = errors.New("message receiver mismatch")
)

// MessageCrypter 回调消息加解密（安全模式）
//
// 明文格式：random(16) + msg_len(4, 大端) + msg + receiverID，
// 使用 AES-256-CBC，密钥为 Base64(EncodingAESKey+"=")，IV 为密钥前 16 字节。
type MessageCrypter struct {
	token      string
	receiverID string
	key        []byte
}

// NewMessageCrypter 创建消息加解密器
// receiverID 公众号为 appid，企业微信为 corpid；为空时不校验接收方。
func NewMessageCrypter(token, encodingAESKey, receiverID string) (*MessageCrypter, error) {
	if len(encodingAESKey) != 43 {
		return nil, ErrInvalidEncodingAESKey
	}
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidEncodingAESKey
	}
	return &MessageCrypter{token: token, receiverID: receiverID, key: key}, nil
}

// Encrypt 加密消息，返回 Base64 密文
func (c *MessageCrypter) Encrypt(msg []byte) (string, error) {
	random, err := RandomString(16)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(random)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(msg))); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	buf.Write(msg)
	buf.WriteString(c.receiverID)

	ciphertext, err := cbcCrypt(PKCS7Pad(buf.Bytes(), msgBlockSize), c.key, c.key[:16], true)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密 Base64 密文，返回消息明文
func (c *MessageCrypter) Decrypt(encrypted string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	plaintext, err := cbcCrypt(ciphertext, c.key, c.key[:16], false)
	if err != nil {
		return nil, err
	}
	plaintext, err = PKCS7Unpad(plaintext, msgBlockSize)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < 20 {
		return nil, ErrInvalidPKCS7Data
	}

	msgLen := int(binary.BigEndian.Uint32(plaintext[16:20]))
	if msgLen > len(plaintext)-20 {
		return nil, ErrInvalidPKCS7Data
	}
	msg := plaintext[20 : 20+msgLen]
	receiver := string(plaintext[20+msgLen:])
	if c.receiverID != "" && receiver != c.receiverID {
		return nil, ErrReceiverMismatch
	}
	return msg, nil
}

// Signature 计算消息签名 sha1(sort(token, timestamp, nonce, encrypted))
func (c *MessageCrypter) Signature(timestamp, nonce, encrypted string) string {
	return SHA1Sign(c.token, timestamp, nonce, encrypted)
}

// encryptedEnvelope 回调请求与被动回复中的加密 XML
type encryptedEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   *cdata   `xml:"ToUserName,omitempty"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature *cdata   `xml:"MsgSignature,omitempty"`
	TimeStamp    string   `xml:"TimeStamp,omitempty"`
	Nonce        *cdata   `xml:"Nonce,omitempty"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// OpenEnvelope 校验签名并解密回调请求体
func (c *MessageCrypter) OpenEnvelope(body []byte, msgSignature, timestamp, nonce string) ([]byte, error) {
	var envelope encryptedEnvelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	expected := c.Signature(timestamp, nonce, envelope.Encrypt.Value)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(msgSignature)) != 1 {
		return nil, ErrSignatureMismatch
	}
	return c.Decrypt(envelope.Encrypt.Value)
}

// SealEnvelope 加密被动回复消息并生成带签名的 XML
func (c *MessageCrypter) SealEnvelope(msg []byte, timestamp, nonce string) ([]byte, error) {
	encrypted, err := c.Encrypt(msg)
	if err != nil {
		return nil, err
	}

	return xml.Marshal(encryptedEnvelope{
		Encrypt:      cdata{encrypted},
		MsgSignature: &cdata{c.Signature(timestamp, nonce, encrypted)},
		TimeStamp:    timestamp,
		Nonce:        &cdata{nonce},
	})
}
