package utils

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"strings"
)

// SHA1Sign 参数按字典序排序后直接拼接再取 SHA1，用于服务器校验与回调消息签名。
// 不修改传入的切片。
func SHA1Sign(params ...string) string {
	sorted := slices.Clone(params)
	slices.Sort(sorted)
	return SHA1Hex(strings.Join(sorted, ""))
}

// SHA1Hex 十六进制小写 SHA1 摘要，JS-SDK 签名使用
func SHA1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MD5Hex 十六进制小写 MD5 摘要，支付 V2 默认签名方式使用
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HMACSHA256 十六进制小写 HMAC-SHA256
func HMACSHA256(data, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature 校验公众号服务器配置时的 signature（token、timestamp、nonce 三者排序后 SHA1）
func VerifySignature(signature, timestamp, nonce, token string) bool {
	return equalDigest(SHA1Sign(token, timestamp, nonce), signature)
}

// VerifyMsgSignature 校验加密模式下的 msg_signature，encryptedMsg 为 Encrypt 字段或 echostr
func VerifyMsgSignature(msgSignature, timestamp, nonce, token, encryptedMsg string) bool {
	return equalDigest(SHA1Sign(token, timestamp, nonce, encryptedMsg), msgSignature)
}

func equalDigest(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(got))) == 1
}

// SortedQuery 将参数按键名字典序拼接为 k1=v1&k2=v2，跳过空值与 skip 中的键。
// 值不做 URL 编码，用于 JS-SDK 与支付签名。
func SortedQuery(params map[string]string, skip ...string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value != "" && !slices.Contains(skip, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return b.String()
}
