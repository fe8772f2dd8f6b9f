package core

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownCredential 未注册的凭证名
	ErrUnknownCredential = errors.New("unknown credential")
	// ErrNoCredentialProvider 请求需要凭证但客户端未配置 CredentialProvider
	ErrNoCredentialProvider = errors.New("credential provider is not configured")
)

// WechatError 微信 API 错误
type WechatError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Error 实现 error 接口
func (e *WechatError) Error() string {
	return fmt.Sprintf("wechat error: [%d] %s", e.ErrCode, e.ErrMsg)
}

// IsSuccess 判断是否成功（errcode 为 0 表示成功）
func (e *WechatError) IsSuccess() bool {
	return e.ErrCode == 0
}

// NewWechatError 创建微信错误
func NewWechatError(code int, msg string) *WechatError {
	return &WechatError{
		ErrCode: code,
		ErrMsg:  msg,
	}
}

// 常见错误码定义
const (
	ErrCodeSuccess           = 0     // 成功
	ErrCodeBusy              = -1    // 系统繁忙
	ErrCodeInvalidCredential = 40001 // access_token 无效或不是最新
	ErrCodeInvalidAppID      = 40013 // 无效的 AppID
	ErrCodeInvalidCode       = 40029 // 无效的 code
	ErrCodeInvalidAppSecret  = 40125 // 无效的 AppSecret
	ErrCodeCodeUsed          = 40163 // code 已被使用
	ErrCodeExpiredToken      = 42001 // access_token 过期
	ErrCodeFreqLimit         = 45011 // 频率限制
	ErrCodeAPIUnauthorized   = 48001 // API 未授权
)

// DefaultRetryCodes 默认触发“刷新凭证并重试一次”的错误码
var DefaultRetryCodes = []int{ErrCodeInvalidCredential}

// TokenRetryCodes 同时覆盖 token 过期的重试码集合，需显式配置
var TokenRetryCodes = []int{ErrCodeInvalidCredential, ErrCodeExpiredToken}

// IsTokenError 判断是否为 token 相关错误（需要刷新 token）
func IsTokenError(err error) bool {
	return IsRetryable(err, TokenRetryCodes)
}

// IsRetryable 判断 err 是否为 codes 中任一错误码的 WechatError
func IsRetryable(err error, codes []int) bool {
	if we, ok := errors.AsType[*WechatError](err); ok {
		return slices.Contains(codes, we.ErrCode)
	}
	return false
}

// TransportError 网络层错误（连接失败、超时、TLS 握手失败等）
// URL 已脱敏，可直接写入日志。
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type timeoutError interface {
	error
	Timeout() bool
}

// Timeout 是否为超时错误
func (e *TransportError) Timeout() bool {
	if t, ok := errors.AsType[timeoutError](e.Err); ok {
		return t.Timeout()
	}
	return false
}

// CredentialFetchError 远程获取凭证失败
type CredentialFetchError struct {
	Tenant string
	Name   string
	Err    error
}

func (e *CredentialFetchError) Error() string {
	return fmt.Sprintf("fetch credential %s for %s: %v", e.Name, e.Tenant, e.Err)
}

func (e *CredentialFetchError) Unwrap() error {
	return e.Err
}

// InvalidCredentialDataError 凭证接口返回了无法使用的数据（缺少值或有效期）
type InvalidCredentialDataError struct {
	Tenant string
	Name   string
	Reason string
}

func (e *InvalidCredentialDataError) Error() string {
	return fmt.Sprintf("invalid credential data %s for %s: %s", e.Name, e.Tenant, e.Reason)
}

// ResponseParseError 响应解析错误
// 当响应体不是有效的 JSON 时返回此错误
type ResponseParseError struct {
	Body []byte // 原始响应体
	Err  error  // 底层解析错误
}

// Error 实现 error 接口
func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse response: %v", e.Err)
}

// Unwrap 支持 errors.Is/As
func (e *ResponseParseError) Unwrap() error {
	return e.Err
}

// NewResponseParseError 创建响应解析错误
func NewResponseParseError(body []byte, err error) *ResponseParseError {
	return &ResponseParseError{
		Body: body,
		Err:  err,
	}
}
