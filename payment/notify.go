package payment

import (
	"fmt"
	"strconv"

	"github.com/ShinyNito/wechatkit/core/utils"
)

// VerifyNotify 解析并校验支付结果通知
// 签名方式取通知中的 sign_type，缺省为 MD5。业务失败的通知同样返回 *PayError。
func (c *Client) VerifyNotify(body []byte) (*Transaction, error) {
	params, err := DecodeXML(body)
	if err != nil {
		return nil, err
	}
	if params["return_code"] != codeSuccess {
		return nil, checkResult(params)
	}

	signType := SignType(params["sign_type"])
	if signType == "" {
		signType = SignTypeMD5
	}
	if err := VerifySign(params, c.cfg.APIKey, signType); err != nil {
		return nil, err
	}
	if params["appid"] != c.cfg.AppID || params["mch_id"] != c.cfg.MchID {
		return nil, fmt.Errorf("notify for appid %q mch_id %q does not belong to this merchant", params["appid"], params["mch_id"])
	}
	if err := checkResult(params); err != nil {
		return nil, err
	}
	return transactionFrom(params)
}

// NotifyReply 生成回复给微信支付的通知应答
func NotifyReply(ok bool, msg string) []byte {
	code := "FAIL"
	if ok {
		code = codeSuccess
		if msg == "" {
			msg = "OK"
		}
	}
	return EncodeXML(Params{"return_code": code, "return_msg": msg})
}

// JSAPIPayParams 前端 WeixinJSBridge getBrandWCPayRequest / wx.chooseWXPay 所需参数
type JSAPIPayParams struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// JSAPIPayParams 使用 prepay_id 生成 JSAPI 调起支付参数
func (c *Client) JSAPIPayParams(prepayID string) (*JSAPIPayParams, error) {
	nonce, err := utils.RandomString(32)
	if err != nil {
		return nil, err
	}
	p := &JSAPIPayParams{
		AppID:     c.cfg.AppID,
		TimeStamp: strconv.FormatInt(c.cfg.Clock().Unix(), 10),
		NonceStr:  nonce,
		Package:   "prepay_id=" + prepayID,
		SignType:  string(c.cfg.SignType),
	}
	p.PaySign, err = c.Sign(Params{
		"appId":     p.AppID,
		"timeStamp": p.TimeStamp,
		"nonceStr":  p.NonceStr,
		"package":   p.Package,
		"signType":  p.SignType,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
