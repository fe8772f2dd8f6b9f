package payment

import (
	"errors"
	"fmt"
)

// ErrSignatureMismatch 响应或回调的签名校验失败
var ErrSignatureMismatch = errors.New("payment signature mismatch")

const (
	codeSuccess = "SUCCESS"

	// ErrCodeUserPaying 付款码支付需要用户输入密码，应轮询订单状态
	ErrCodeUserPaying    = "USERPAYING"
	ErrCodeSystemError   = "SYSTEMERROR"
	ErrCodeOrderNotExist = "ORDERNOTEXIST"
)

// PayError 支付接口返回的通信或业务错误
// ReturnCode 非 SUCCESS 为通信错误；ResultCode 非 SUCCESS 为业务错误，ErrCode 给出原因。
type PayError struct {
	ReturnCode string
	ReturnMsg  string
	ResultCode string
	ErrCode    string
	ErrCodeDes string
}

func (e *PayError) Error() string {
	if e.ReturnCode != codeSuccess {
		return fmt.Sprintf("wechat pay error: %s %s", e.ReturnCode, e.ReturnMsg)
	}
	return fmt.Sprintf("wechat pay error: [%s] %s", e.ErrCode, e.ErrCodeDes)
}

// IsUserPaying 判断是否为付款码支付等待用户输入密码
func IsUserPaying(err error) bool {
	if pe, ok := errors.AsType[*PayError](err); ok {
		return pe.ErrCode == ErrCodeUserPaying
	}
	return false
}

func checkResult(params Params) error {
	if params["return_code"] != codeSuccess {
		return &PayError{ReturnCode: params["return_code"], ReturnMsg: params["return_msg"]}
	}
	if code, ok := params["result_code"]; ok && code != codeSuccess {
		return &PayError{
			ReturnCode: params["return_code"],
			ReturnMsg:  params["return_msg"],
			ResultCode: code,
			ErrCode:    params["err_code"],
			ErrCodeDes: params["err_code_des"],
		}
	}
	return nil
}
