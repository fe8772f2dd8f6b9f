package core

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userInfo struct {
	OpenID   string `json:"openid"`
	Nickname string `json:"nickname"`
}

func TestTypedRequest_Get(t *testing.T) {
	tests := []struct {
		name      string
		build     func(*TypedRequest[userInfo]) *TypedRequest[userInfo]
		wantToken string
		wantCreds []string
	}{
		{
			name: "access_token by default",
			build: func(r *TypedRequest[userInfo]) *TypedRequest[userInfo] {
				return r.Path("/cgi-bin/user/info").Query("openid", "o1")
			},
			wantToken: "tok",
			wantCreds: []string{CredentialAccessToken},
		},
		{
			name: "without token",
			build: func(r *TypedRequest[userInfo]) *TypedRequest[userInfo] {
				return r.Path("/sns/jscode2session").QueryMap(map[string]string{"openid": "o1"}).WithoutToken()
			},
		},
		{
			name: "named credential",
			build: func(r *TypedRequest[userInfo]) *TypedRequest[userInfo] {
				return r.Path("/cgi-bin/ticket/check").Query("openid", "o1").Credential(CredentialJSAPITicket)
			},
			wantToken: "tok",
			wantCreds: []string{CredentialJSAPITicket},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.wantToken, r.URL.Query().Get("access_token"))
				assert.Equal(t, "o1", r.URL.Query().Get("openid"))
				_, _ = w.Write([]byte(`{"errcode":0,"openid":"o1","nickname":"alice"}`))
			}))
			t.Cleanup(server.Close)

			creds := &mockCredentials{value: "tok"}
			client := newMockClient(t, server.URL, creds)

			got, err := tt.build(NewTypedRequest[userInfo](client)).Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, userInfo{OpenID: "o1", Nickname: "alice"}, got)
			assert.Equal(t, tt.wantCreds, creds.names)
		})
	}
}

func TestTypedRequest_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "image", r.FormValue("type"))
		assert.Equal(t, `{"title":"t"}`, r.FormValue("description"))

		f, header, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "a.jpg", header.Filename)
		assert.Equal(t, "hello", string(data))

		_, _ = w.Write([]byte(`{"errcode":0,"media_id":"m1"}`))
	}))
	t.Cleanup(server.Close)

	client := newMockClient(t, server.URL, &mockCredentials{value: "tok"})

	type uploadResp struct {
		MediaID string `json:"media_id"`
	}
	got, err := NewTypedRequest[uploadResp](client).
		Path("/cgi-bin/material/add_material").
		UploadFile("media", "a.jpg", strings.NewReader("hello")).
		UploadField("type", "image").
		UploadExtraFields(map[string]string{"description": `{"title":"t"}`}).
		Post(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "m1", got.MediaID)
}

func TestTypedRequest_FormAndContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/form":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "o1", r.PostForm.Get("openid"))
		case "/text":
			assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{"errcode":0,"ok":true}`))
	}))
	t.Cleanup(server.Close)

	client := newMockClient(t, server.URL, &mockCredentials{value: "tok"})

	type okResp struct {
		OK bool `json:"ok"`
	}
	got, err := NewTypedRequest[okResp](client).Path("/form").Form(map[string]string{"openid": "o1"}).Post(context.Background())
	require.NoError(t, err)
	assert.True(t, got.OK)

	got, err = NewTypedRequest[okResp](client).Path("/text").Body([]byte("raw")).ContentType("text/plain").Post(context.Background())
	require.NoError(t, err)
	assert.True(t, got.OK)
}

func TestTypedRequest_Errors(t *testing.T) {
	t.Run("wechat error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"errcode":40003,"errmsg":"invalid openid"}`))
		}))
		t.Cleanup(server.Close)

		client := newMockClient(t, server.URL, &mockCredentials{value: "tok"})
		_, err := NewTypedRequest[userInfo](client).Path("/cgi-bin/user/info").Get(context.Background())

		we, ok := errors.AsType[*WechatError](err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, 40003, we.ErrCode)
	})

	t.Run("credential failure", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
		t.Cleanup(server.Close)

		boom := errors.New("token endpoint down")
		client := newMockClient(t, server.URL, &mockCredentials{err: boom})
		_, err := NewTypedRequest[userInfo](client).Path("/cgi-bin/user/info").Get(context.Background())

		assert.ErrorIs(t, err, boom)
		assert.Zero(t, hits.Load())
	})

	t.Run("retried once after invalid credential", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.URL.Query().Get("access_token") == "stale" {
				_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
				return
			}
			_, _ = w.Write([]byte(`{"errcode":0,"openid":"o1"}`))
		}))
		t.Cleanup(server.Close)

		creds := &mockCredentials{value: "stale", refreshed: []string{"fresh"}}
		client := newMockClient(t, server.URL, creds)
		got, err := NewTypedRequest[userInfo](client).Path("/cgi-bin/user/info").Get(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "o1", got.OpenID)
		assert.EqualValues(t, 2, hits.Load())
		assert.Equal(t, 1, creds.refreshes)
	})
}
