package tenant

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ShinyNito/wechatkit/core/utils"
)

// JSAPISign wx.config / wx.agentConfig 所需的签名参数
type JSAPISign struct {
	NonceStr  string
	Timestamp int64
	Signature string
}

// SignJSAPI 计算 JS-SDK 签名：sha1(jsapi_ticket=...&noncestr=...&timestamp=...&url=...)
func SignJSAPI(ticket, rawURL string, now time.Time) (JSAPISign, error) {
	nonceStr, err := utils.RandomString(16)
	if err != nil {
		return JSAPISign{}, fmt.Errorf("generate nonce: %w", err)
	}
	timestamp := now.Unix()
	return JSAPISign{
		NonceStr:  nonceStr,
		Timestamp: timestamp,
		Signature: JSAPISignature(ticket, nonceStr, timestamp, rawURL),
	}, nil
}

// JSAPISignature 按固定参数计算签名，url 的 # 部分会被去掉
func JSAPISignature(ticket, nonceStr string, timestamp int64, rawURL string) string {
	return utils.SHA1Hex(utils.SortedQuery(map[string]string{
		"jsapi_ticket": ticket,
		"noncestr":     nonceStr,
		"timestamp":    strconv.FormatInt(timestamp, 10),
		"url":          StripFragment(rawURL),
	}))
}
