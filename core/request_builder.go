package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// credentialQueryKey 所有凭证（包括 ticket）都以该参数名附加到 URL
const credentialQueryKey = "access_token"

// RequestBuilder 请求构建器
//
// 请求以结构化形式保存，重试时用新凭证重新生成 URL，请求体只编码一次。
type RequestBuilder struct {
	client         *Client
	path           string
	query          map[string]string
	body           any
	form           map[string]string
	contentType    string
	credential     string
	withCredential bool
	method         string
	// sentCredential 上一次请求实际携带的凭证值，刷新时告知提供者
	sentCredential string

	// 文件上传相关
	uploadFile        io.Reader
	uploadFieldName   string
	uploadFileName    string
	uploadExtraFields map[string]string
}

// newRequestBuilder 创建请求构建器（包内使用）
func newRequestBuilder(client *Client) *RequestBuilder {
	return &RequestBuilder{
		client:         client,
		query:          make(map[string]string),
		credential:     CredentialAccessToken,
		withCredential: true, // 默认添加 access_token
	}
}

// Path 设置请求路径
func (b *RequestBuilder) Path(path string) *RequestBuilder {
	b.path = path
	return b
}

// Query 添加单个查询参数
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	if b.query == nil {
		b.query = make(map[string]string)
	}
	b.query[key] = value
	return b
}

// QueryMap 批量设置查询参数
func (b *RequestBuilder) QueryMap(query map[string]string) *RequestBuilder {
	if b.query == nil {
		b.query = make(map[string]string)
	}
	maps.Copy(b.query, query)
	return b
}

// Body 设置 JSON 请求体；[]byte 与 string 原样发送
func (b *RequestBuilder) Body(body any) *RequestBuilder {
	b.body = body
	return b
}

// Form 设置 application/x-www-form-urlencoded 请求体
func (b *RequestBuilder) Form(form map[string]string) *RequestBuilder {
	b.form = form
	return b
}

// ContentType 覆盖请求体的 Content-Type，例如支付接口的 XML
func (b *RequestBuilder) ContentType(contentType string) *RequestBuilder {
	b.contentType = contentType
	return b
}

// Credential 指定附加到请求上的凭证名，默认 access_token
func (b *RequestBuilder) Credential(name string) *RequestBuilder {
	b.credential = name
	b.withCredential = true
	return b
}

// WithoutToken 不添加 access_token
func (b *RequestBuilder) WithoutToken() *RequestBuilder {
	b.withCredential = false
	return b
}

// WithToken 添加 access_token（默认行为）
func (b *RequestBuilder) WithToken() *RequestBuilder {
	b.withCredential = true
	return b
}

// UploadFile 设置文件上传参数
// fieldName: 表单字段名
// fileName: 文件名
// fileReader: 文件内容
func (b *RequestBuilder) UploadFile(fieldName, fileName string, fileReader io.Reader) *RequestBuilder {
	b.uploadFile = fileReader
	b.uploadFieldName = fieldName
	b.uploadFileName = fileName
	return b
}

// UploadField 添加单个上传表单字段
func (b *RequestBuilder) UploadField(key, value string) *RequestBuilder {
	if b.uploadExtraFields == nil {
		b.uploadExtraFields = make(map[string]string)
	}
	b.uploadExtraFields[key] = value
	return b
}

// UploadExtraFields 设置上传时的额外表单字段
func (b *RequestBuilder) UploadExtraFields(fields map[string]string) *RequestBuilder {
	b.uploadExtraFields = fields
	return b
}

// Get 执行 GET 请求
func (b *RequestBuilder) Get(ctx context.Context) (*Response, error) {
	b.method = http.MethodGet
	return b.do(ctx)
}

// Post 执行 POST 请求，请求体按 UploadFile、Form、Body 的优先级编码
func (b *RequestBuilder) Post(ctx context.Context) (*Response, error) {
	b.method = http.MethodPost
	return b.do(ctx)
}

type encodedBody struct {
	data        []byte
	contentType string
	loggable    bool
}

// do 执行请求；凭证被拒绝（errcode 在重试集合内）时强制刷新并重试一次
func (b *RequestBuilder) do(ctx context.Context) (*Response, error) {
	payload, err := b.encodeBody()
	if err != nil {
		return nil, err
	}

	resp, err := b.attempt(ctx, payload, false)
	if err != nil {
		return nil, err
	}
	code := resp.ErrCode()
	if code == 0 {
		return resp, nil
	}

	b.client.recordError(resp)
	if !b.withCredential || !b.client.isRetryable(code) {
		return resp, resp.Err()
	}

	b.client.recorder.IncRetry(b.path, code)
	b.client.logger.WarnContext(ctx, "credential rejected, refreshing",
		slog.String("path", b.path),
		slog.String("credential", b.credential),
		slog.Int("errcode", code),
	)

	resp, err = b.attempt(ctx, payload, true)
	if err != nil {
		return nil, err
	}
	if resp.ErrCode() != 0 {
		b.client.recordError(resp)
		return resp, resp.Err()
	}
	return resp, nil
}

func (b *RequestBuilder) attempt(ctx context.Context, payload encodedBody, refresh bool) (*Response, error) {
	query := maps.Clone(b.query)
	if query == nil {
		query = make(map[string]string)
	}
	if b.withCredential {
		value, err := b.credentialValue(ctx, refresh)
		if err != nil {
			return nil, err
		}
		query[credentialQueryKey] = value
		b.sentCredential = value
	}

	reqURL, err := b.client.buildURL(b.path, query)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var body io.Reader
	if payload.data != nil {
		body = bytes.NewReader(payload.data)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	switch {
	case payload.data != nil && b.contentType != "":
		req.Header.Set("Content-Type", b.contentType)
	case payload.contentType != "":
		req.Header.Set("Content-Type", payload.contentType)
	}

	if payload.loggable {
		b.client.logRequest(ctx, b.method, reqURL, payload.data)
	} else {
		b.client.logRequest(ctx, b.method, reqURL, nil)
	}

	start := time.Now()
	httpResp, err := b.client.httpClient.Do(req)
	if err != nil {
		b.client.recorder.ObserveRequest(b.path, -1, time.Since(start))
		return nil, b.transportError(reqURL, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		b.client.recorder.ObserveRequest(b.path, -1, time.Since(start))
		return nil, b.transportError(reqURL, fmt.Errorf("read response: %w", err))
	}

	resp := newResponse(httpResp.StatusCode, httpResp.Header, respBody)
	b.client.recorder.ObserveRequest(b.path, resp.ErrCode(), time.Since(start))
	b.client.logResponse(ctx, resp)
	return resp, nil
}

func (b *RequestBuilder) credentialValue(ctx context.Context, refresh bool) (string, error) {
	provider := b.client.credentials
	if provider == nil {
		return "", ErrNoCredentialProvider
	}

	var (
		value string
		err   error
	)
	switch rr, ok := provider.(RejectedRefresher); {
	case refresh && ok && b.sentCredential != "":
		value, err = rr.RefreshRejected(ctx, b.credential, b.sentCredential)
	case refresh:
		value, err = provider.Refresh(ctx, b.credential)
	default:
		value, err = provider.Get(ctx, b.credential)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", strings.ReplaceAll(b.credential, "_", " "), err)
	}
	return value, nil
}

// transportError 包装网络错误，并把 *url.Error 中的 URL 脱敏
func (b *RequestBuilder) transportError(reqURL string, err error) error {
	if ue, ok := errors.AsType[*url.Error](err); ok {
		ue.URL = RedactURLQuery(ue.URL)
	}
	return &TransportError{Method: b.method, URL: RedactURLQuery(reqURL), Err: err}
}

func (b *RequestBuilder) encodeBody() (encodedBody, error) {
	switch {
	case b.uploadFile != nil:
		return b.encodeMultipart()
	case b.form != nil:
		values := make(url.Values, len(b.form))
		for key, value := range b.form {
			values.Set(key, value)
		}
		return encodedBody{
			data:        []byte(values.Encode()),
			contentType: "application/x-www-form-urlencoded",
		}, nil
	case b.body != nil:
		data, err := encodeJSONBody(b.body)
		if err != nil {
			return encodedBody{}, err
		}
		return encodedBody{data: data, contentType: "application/json; charset=utf-8", loggable: true}, nil
	default:
		return encodedBody{}, nil
	}
}

// encodeMultipart 一次性读入上传内容，重试时可重放
func (b *RequestBuilder) encodeMultipart() (encodedBody, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(b.uploadFieldName, b.uploadFileName)
	if err != nil {
		return encodedBody{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, b.uploadFile); err != nil {
		return encodedBody{}, fmt.Errorf("copy file: %w", err)
	}

	for key, value := range b.uploadExtraFields {
		if err = writer.WriteField(key, value); err != nil {
			return encodedBody{}, fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if err = writer.Close(); err != nil {
		return encodedBody{}, fmt.Errorf("close writer: %w", err)
	}

	return encodedBody{data: body.Bytes(), contentType: writer.FormDataContentType()}, nil
}

// encodeJSONBody 编码 JSON 请求体，不转义 HTML 字符与中文
func encodeJSONBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(body); err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
