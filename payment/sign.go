// Package payment 微信支付（V2 接口）：签名、XML 编解码、统一下单、付款码支付与回调校验。
package payment

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/ShinyNito/wechatkit/core/utils"
)

type SignType string

const (
	SignTypeMD5        SignType = "MD5"
	SignTypeHMACSHA256 SignType = "HMAC-SHA256"
)

// Sign 计算支付签名
//
// 参数按键名字典序拼接为 k1=v1&k2=v2，跳过空值与 sign 本身，末尾追加 &key=APIKey，
// 再做 MD5 或 HMAC-SHA256（以 APIKey 为密钥），结果转为大写。
func Sign(params Params, apiKey string, signType SignType) (string, error) {
	str := utils.SortedQuery(params, "sign") + "&key=" + apiKey

	switch signType {
	case "", SignTypeMD5:
		return strings.ToUpper(utils.MD5Hex(str)), nil
	case SignTypeHMACSHA256:
		return strings.ToUpper(utils.HMACSHA256(str, apiKey)), nil
	default:
		return "", fmt.Errorf("unsupported sign type %q", signType)
	}
}

// VerifySign 校验参数中的 sign 字段
func VerifySign(params Params, apiKey string, signType SignType) error {
	got := params["sign"]
	if got == "" {
		return ErrSignatureMismatch
	}
	want, err := Sign(params, apiKey, signType)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
