package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCredentials 模拟凭证提供者，Refresh 依次返回 refreshed 中的值
type mockCredentials struct {
	mu        sync.Mutex
	value     string
	refreshed []string
	err       error
	gets      int
	refreshes int
	names     []string
}

func (m *mockCredentials) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	m.names = append(m.names, name)
	if m.err != nil {
		return "", m.err
	}
	return m.value, nil
}

func (m *mockCredentials) Refresh(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	m.names = append(m.names, name)
	if m.err != nil {
		return "", m.err
	}
	if len(m.refreshed) > 0 {
		m.value, m.refreshed = m.refreshed[0], m.refreshed[1:]
	}
	return m.value, nil
}

func newMockClient(t *testing.T, serverURL string, creds CredentialProvider, retryCodes ...int) *Client {
	t.Helper()
	cfg := ClientConfig{BaseURL: serverURL, Credentials: creds}
	if len(retryCodes) > 0 {
		cfg.RetryCodes = retryCodes
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestClient_Request_GET(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		query          map[string]string
		withToken      bool
		credentials    CredentialProvider
		serverHandler  func(w http.ResponseWriter, r *http.Request)
		wantErr        bool
		wantErrContain string
		validateBody   func(t *testing.T, body []byte)
	}{
		{
			name:        "成功的 GET 请求（带 token）",
			path:        "/test",
			query:       map[string]string{"openid": "test_openid"},
			credentials: &mockCredentials{value: "test_token"},
			withToken:   true,
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "test_token", r.URL.Query().Get("access_token"))
				assert.Equal(t, "test_openid", r.URL.Query().Get("openid"))
				_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "data": "success"})
			},
			validateBody: func(t *testing.T, body []byte) {
				var result map[string]any
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, "success", result["data"])
			},
		},
		{
			name:        "GET 请求（不带 token）",
			path:        "/sns/jscode2session",
			query:       map[string]string{"js_code": "test_code"},
			credentials: &mockCredentials{value: "test_token"},
			withToken:   false,
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				assert.Empty(t, r.URL.Query().Get("access_token"))
				_ = json.NewEncoder(w).Encode(map[string]any{"openid": "test_openid"})
			},
			validateBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "test_openid")
			},
		},
		{
			name:           "凭证提供者返回错误",
			path:           "/test",
			credentials:    &mockCredentials{err: errors.New("provider error")},
			withToken:      true,
			wantErr:        true,
			wantErrContain: "get access token",
		},
		{
			name:           "未配置凭证提供者",
			path:           "/test",
			withToken:      true,
			wantErr:        true,
			wantErrContain: ErrNoCredentialProvider.Error(),
		},
		{
			name:        "服务器返回错误状态码",
			path:        "/test",
			credentials: &mockCredentials{value: "test_token"},
			withToken:   true,
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			},
			validateBody: func(t *testing.T, body []byte) {
				// HTTP 错误不应导致请求失败，应返回响应体
				assert.Contains(t, string(body), "Internal Server Error")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serverURL := "http://127.0.0.1:1"
			if tt.serverHandler != nil {
				server := httptest.NewServer(http.HandlerFunc(tt.serverHandler))
				defer server.Close()
				serverURL = server.URL
			}

			client := newMockClient(t, serverURL, tt.credentials)
			builder := client.Request().Path(tt.path).QueryMap(tt.query)
			if !tt.withToken {
				builder = builder.WithoutToken()
			}

			resp, err := builder.Get(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrContain)
				return
			}
			require.NoError(t, err)
			if tt.validateBody != nil {
				tt.validateBody(t, resp.Body)
			}
		})
	}
}

func TestClient_Request_POST(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *RequestBuilder) *RequestBuilder
		check func(t *testing.T, r *http.Request, body string)
	}{
		{
			name: "JSON 请求体不转义中文与 HTML",
			build: func(b *RequestBuilder) *RequestBuilder {
				return b.Body(map[string]any{"content": "你好 <a href=\"x\">"})
			},
			check: func(t *testing.T, r *http.Request, body string) {
				assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
				assert.Equal(t, `{"content":"你好 <a href=\"x\">"}`, body)
			},
		},
		{
			name: "原始字节请求体",
			build: func(b *RequestBuilder) *RequestBuilder {
				return b.Body([]byte(`{"raw":true}`))
			},
			check: func(t *testing.T, r *http.Request, body string) {
				assert.Equal(t, `{"raw":true}`, body)
			},
		},
		{
			name: "表单请求体",
			build: func(b *RequestBuilder) *RequestBuilder {
				return b.Form(map[string]string{"a": "1", "b": "x y"})
			},
			check: func(t *testing.T, r *http.Request, body string) {
				assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
				values, err := url.ParseQuery(body)
				require.NoError(t, err)
				assert.Equal(t, "1", values.Get("a"))
				assert.Equal(t, "x y", values.Get("b"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "token", r.URL.Query().Get("access_token"))
				body, _ := io.ReadAll(r.Body)
				tt.check(t, r, string(body))
				_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
			}))
			defer server.Close()

			client := newMockClient(t, server.URL, &mockCredentials{value: "token"})
			_, err := tt.build(client.Request().Path("/cgi-bin/message/custom/send")).Post(context.Background())
			require.NoError(t, err)
		})
	}
}

func TestClient_RetryOnInvalidCredential(t *testing.T) {
	var attempts atomic.Int32
	var seenTokens []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		token := r.URL.Query().Get("access_token")
		mu.Lock()
		seenTokens = append(seenTokens, token)
		mu.Unlock()
		assert.Equal(t, "o1", r.URL.Query().Get("openid"), "原有参数在重试时保留")
		if token == "stale" {
			_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0,"nickname":"alice"}`))
	}))
	defer server.Close()

	creds := &mockCredentials{value: "stale", refreshed: []string{"fresh"}}
	client := newMockClient(t, server.URL, creds)

	resp, err := client.Request().Path("/cgi-bin/user/info").Query("openid", "o1").Get(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "alice")
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, []string{"stale", "fresh"}, seenTokens)
	assert.Equal(t, 1, creds.refreshes)
	require.NotNil(t, client.LastError())
	assert.Equal(t, 40001, client.LastError().ErrCode)
}

func TestClient_RetryAtMostOnce(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
	}))
	defer server.Close()

	creds := &mockCredentials{value: "t1", refreshed: []string{"t2", "t3"}}
	client := newMockClient(t, server.URL, creds)

	resp, err := client.Request().Path("/cgi-bin/menu/get").Get(context.Background())
	require.Error(t, err)
	we, ok := errors.AsType[*WechatError](err)
	require.True(t, ok)
	assert.Equal(t, 40001, we.ErrCode)
	require.NotNil(t, resp)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 1, creds.refreshes)
}

func TestClient_NoRetryOnOtherCodes(t *testing.T) {
	tests := []struct {
		name       string
		errcode    int
		retryCodes []int
		withToken  bool
	}{
		{name: "业务错误码", errcode: 40003, withToken: true},
		{name: "42001 默认不重试", errcode: 42001, withToken: true},
		{name: "不带凭证的请求不重试", errcode: 40001, withToken: false},
		{name: "空重试集合", errcode: 40001, retryCodes: []int{}, withToken: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				_ = json.NewEncoder(w).Encode(map[string]any{"errcode": tt.errcode, "errmsg": "failed"})
			}))
			defer server.Close()

			creds := &mockCredentials{value: "token"}
			client, err := NewClient(ClientConfig{BaseURL: server.URL, Credentials: creds, RetryCodes: tt.retryCodes})
			require.NoError(t, err)

			builder := client.Request().Path("/test")
			if !tt.withToken {
				builder.WithoutToken()
			}
			_, err = builder.Get(context.Background())

			we, ok := errors.AsType[*WechatError](err)
			require.True(t, ok)
			assert.Equal(t, tt.errcode, we.ErrCode)
			assert.Equal(t, int32(1), attempts.Load())
			assert.Zero(t, creds.refreshes)
			assert.Equal(t, tt.errcode, client.LastError().ErrCode)
		})
	}
}

func TestClient_RetryWithExtendedCodes(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errcode":42001,"errmsg":"access_token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0}`))
	}))
	defer server.Close()

	creds := &mockCredentials{value: "t1", refreshed: []string{"t2"}}
	client := newMockClient(t, server.URL, creds, TokenRetryCodes...)

	_, err := client.Request().Path("/test").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_RetryUsesNamedCredential(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errcode":40001}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0}`))
	}))
	defer server.Close()

	creds := &mockCredentials{value: "ticket"}
	client := newMockClient(t, server.URL, creds)

	_, err := client.Request().Path("/test").Credential(CredentialJSAPITicket).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{CredentialJSAPITicket, CredentialJSAPITicket}, creds.names)
}

func TestClient_UploadReplayedOnRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("media")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "hello", string(data))

		if attempts.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errcode":40001}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0,"media_id":"m1"}`))
	}))
	defer server.Close()

	client := newMockClient(t, server.URL, &mockCredentials{value: "t1", refreshed: []string{"t2"}})
	resp, err := client.Request().
		Path("/cgi-bin/media/upload").
		UploadFile("media", "a.jpg", strings.NewReader("hello")).
		Post(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "m1")
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_RawPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	}))
	defer server.Close()

	client := newMockClient(t, server.URL, &mockCredentials{value: "token"})
	resp, err := client.Request().Path("/cgi-bin/media/get").Get(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.IsJSON())
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, resp.Body)
	assert.Nil(t, client.LastError())
}

func TestClient_ContentTypeOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<xml><a>1</a></xml>", string(body))
		_, _ = w.Write([]byte("<xml><return_code>SUCCESS</return_code></xml>"))
	}))
	defer server.Close()

	client := newMockClient(t, server.URL, nil)
	resp, err := client.Request().
		Path("/pay/orderquery").
		WithoutToken().
		ContentType("text/xml; charset=utf-8").
		Body([]byte("<xml><a>1</a></xml>")).
		Post(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.IsJSON())
	assert.Zero(t, resp.ErrCode())
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	creds := &mockCredentials{value: "secret-token"}
	client, err := NewClient(ClientConfig{
		BaseURL:     server.URL,
		HTTPClient:  &http.Client{Timeout: 20 * time.Millisecond},
		Credentials: creds,
	})
	require.NoError(t, err)

	_, err = client.Request().Path("/test").Get(context.Background())
	te, ok := errors.AsType[*TransportError](err)
	require.True(t, ok)
	assert.True(t, te.Timeout())
	assert.NotContains(t, err.Error(), "secret-token")
	assert.Zero(t, creds.refreshes, "超时不触发凭证刷新")
}

func TestClient_DefaultTLSVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":0}`))
	}))
	defer server.Close()

	client := newMockClient(t, server.URL, nil)
	_, err := client.Request().Path("/test").WithoutToken().Get(context.Background())
	_, ok := errors.AsType[*TransportError](err)
	assert.True(t, ok, "自签名证书应校验失败")

	insecure, err := NewClient(ClientConfig{BaseURL: server.URL, InsecureSkipVerify: true})
	require.NoError(t, err)
	_, err = insecure.Request().Path("/test").WithoutToken().Get(context.Background())
	assert.NoError(t, err)
}

func TestClient_BuildURL(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		path        string
		query       map[string]string
		wantPath    string
		wantQueries map[string]string
	}{
		{
			name:        "简单路径",
			baseURL:     "https://api.weixin.qq.com",
			path:        "/cgi-bin/token",
			query:       map[string]string{"grant_type": "client_credential"},
			wantPath:    "/cgi-bin/token",
			wantQueries: map[string]string{"grant_type": "client_credential"},
		},
		{
			name:        "路径包含查询参数",
			baseURL:     "https://api.weixin.qq.com",
			path:        "/test?foo=bar",
			query:       map[string]string{"a": "1"},
			wantPath:    "/test",
			wantQueries: map[string]string{"foo": "bar", "a": "1"},
		},
		{
			name:        "没有查询参数",
			baseURL:     "https://qyapi.weixin.qq.com/",
			path:        "/test",
			wantPath:    "/test",
			wantQueries: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ClientConfig{BaseURL: tt.baseURL})
			require.NoError(t, err)

			gotURL, err := client.buildURL(tt.path, tt.query)
			require.NoError(t, err)

			parsedURL, err := url.Parse(gotURL)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, parsedURL.Path)

			gotQueries := parsedURL.Query()
			assert.Len(t, gotQueries, len(tt.wantQueries))
			for key, wantValue := range tt.wantQueries {
				assert.Equal(t, wantValue, gotQueries.Get(key))
			}
		})
	}
}
