package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type wechatErrorEnvelope struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Response 微信 API 原始响应
// 构造时解析一次 errcode/errmsg 信封：JSON 且 errcode 非 0 为失败，
// 非 JSON 的响应（如媒体文件下载）视为原始成功载荷。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	isJSON  bool
	errCode int
	errMsg  string
}

func newResponse(statusCode int, header http.Header, body []byte) *Response {
	resp := &Response{StatusCode: statusCode, Header: header, Body: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return resp
	}
	if trimmed[0] == '[' {
		resp.isJSON = json.Valid(trimmed)
		return resp
	}

	var envelope wechatErrorEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return resp
	}
	resp.isJSON = true
	if envelope.ErrCode != nil {
		resp.errCode = *envelope.ErrCode
	}
	resp.errMsg = envelope.ErrMsg
	return resp
}

// IsJSON 响应体是否为 JSON
func (r *Response) IsJSON() bool {
	return r.isJSON
}

// ErrCode 返回信封中的 errcode，缺省或非 JSON 时为 0
func (r *Response) ErrCode() int {
	return r.errCode
}

// Err 信封表示失败时返回 *WechatError，否则返回 nil
func (r *Response) Err() error {
	if r.errCode == 0 {
		return nil
	}
	return NewWechatError(r.errCode, r.errMsg)
}

// Decode 将 JSON 响应体解析到 v，非 JSON 时返回 *ResponseParseError
func (r *Response) Decode(v any) error {
	if !r.isJSON {
		return NewResponseParseError(r.Body, fmt.Errorf("response is not json (status %d)", r.StatusCode))
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return NewResponseParseError(r.Body, err)
	}
	return nil
}

// DecodeWechat 按微信信封规则解析响应到 T
func DecodeWechat[T any](statusCode int, body []byte) (T, error) {
	var zero T

	if len(bytes.TrimSpace(body)) == 0 {
		if statusCode >= 200 && statusCode < 300 {
			return zero, nil
		}
		return zero, fmt.Errorf("http status %d", statusCode)
	}

	resp := newResponse(statusCode, nil, body)
	if err := resp.Err(); err != nil {
		return zero, err
	}

	if statusCode < 200 || statusCode >= 300 {
		return zero, fmt.Errorf("http status %d: %s", statusCode, truncateBody(body, 256))
	}

	var out T
	if err := resp.Decode(&out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func truncateBody(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
