package core

import (
	"context"
	"io"
)

// TypedRequest 包装 RequestBuilder，成功响应按信封规则解析为 T。
// 凭证附加与失效重试的行为与 RequestBuilder 完全一致。
type TypedRequest[T any] struct {
	builder *RequestBuilder
}

// NewTypedRequest 默认附加 access_token
func NewTypedRequest[T any](client *Client) *TypedRequest[T] {
	return &TypedRequest[T]{builder: newRequestBuilder(client)}
}

func (r *TypedRequest[T]) Path(path string) *TypedRequest[T] {
	r.builder.Path(path)
	return r
}

func (r *TypedRequest[T]) Query(key, value string) *TypedRequest[T] {
	r.builder.Query(key, value)
	return r
}

func (r *TypedRequest[T]) QueryMap(query map[string]string) *TypedRequest[T] {
	r.builder.QueryMap(query)
	return r
}

func (r *TypedRequest[T]) Body(body any) *TypedRequest[T] {
	r.builder.Body(body)
	return r
}

func (r *TypedRequest[T]) Form(form map[string]string) *TypedRequest[T] {
	r.builder.Form(form)
	return r
}

func (r *TypedRequest[T]) ContentType(contentType string) *TypedRequest[T] {
	r.builder.ContentType(contentType)
	return r
}

// Credential 以查询参数附加指定名称的凭证，例如 jsapi_ticket 或 component_access_token
func (r *TypedRequest[T]) Credential(name string) *TypedRequest[T] {
	r.builder.Credential(name)
	return r
}

func (r *TypedRequest[T]) WithoutToken() *TypedRequest[T] {
	r.builder.WithoutToken()
	return r
}

func (r *TypedRequest[T]) UploadFile(field, fileName string, reader io.Reader) *TypedRequest[T] {
	r.builder.UploadFile(field, fileName, reader)
	return r
}

func (r *TypedRequest[T]) UploadField(key, value string) *TypedRequest[T] {
	r.builder.UploadField(key, value)
	return r
}

func (r *TypedRequest[T]) UploadExtraFields(fields map[string]string) *TypedRequest[T] {
	r.builder.UploadExtraFields(fields)
	return r
}

func (r *TypedRequest[T]) Get(ctx context.Context) (T, error) {
	return decodeTyped[T](r.builder.Get(ctx))
}

func (r *TypedRequest[T]) Post(ctx context.Context) (T, error) {
	return decodeTyped[T](r.builder.Post(ctx))
}

// 传输错误和凭证获取失败直接返回；微信业务错误由 DecodeWechat 转成 *WechatError
func decodeTyped[T any](resp *Response, err error) (T, error) {
	if resp == nil {
		var zero T
		return zero, err
	}
	return DecodeWechat[T](resp.StatusCode, resp.Body)
}
