package miniprogram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShinyNito/wechatkit/core"
	"github.com/ShinyNito/wechatkit/core/utils"
)

func TestCode2Session(t *testing.T) {
	tests := []struct {
		name           string
		jsCode         string
		serverResponse string
		wantOpenID     string
		wantSessionKey string
		wantUnionID    string
		wantErrCode    int
		wantErr        string
	}{
		{
			name:           "成功获取 session（无 UnionID）",
			jsCode:         "081aBZ000X0pJt1WjY200zWDKK1aBZ0J",
			serverResponse: `{"openid":"test_openid","session_key":"test_session_key"}`,
			wantOpenID:     "test_openid",
			wantSessionKey: "test_session_key",
		},
		{
			name:           "成功获取 session（有 UnionID）",
			jsCode:         "081aBZ000X0pJt1WjY200zWDKK1aBZ0J",
			serverResponse: `{"openid":"test_openid","session_key":"test_session_key","unionid":"test_unionid"}`,
			wantOpenID:     "test_openid",
			wantSessionKey: "test_session_key",
			wantUnionID:    "test_unionid",
		},
		{
			name:           "code 无效",
			jsCode:         "invalid_code",
			serverResponse: `{"errcode":40029,"errmsg":"invalid code"}`,
			wantErrCode:    40029,
		},
		{
			name:           "code 被封禁",
			jsCode:         "banned_code",
			serverResponse: `{"errcode":40226,"errmsg":"high risk user, code has been blocked"}`,
			wantErrCode:    40226,
		},
		{
			name:           "系统繁忙",
			jsCode:         "test_code",
			serverResponse: `{"errcode":-1,"errmsg":"system error"}`,
			wantErrCode:    -1,
		},
		{
			name:    "JSCode 为空",
			wantErr: "js_code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, Code2SessionPath, r.URL.Path)

				query := r.URL.Query()
				assert.Equal(t, "test_appid", query.Get("appid"))
				assert.Equal(t, "test_secret", query.Get("secret"))
				assert.Equal(t, tt.jsCode, query.Get("js_code"))
				assert.Equal(t, "authorization_code", query.Get("grant_type"))
				// code2session 不携带 access_token
				assert.Empty(t, query.Get("access_token"))

				_, _ = w.Write([]byte(tt.serverResponse))
			})

			resp, err := client.Code2Session(context.Background(), Code2SessionRequest{JSCode: tt.jsCode})
			assert.Zero(t, srv.tokenCalls.Load())

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			if tt.wantErrCode != 0 {
				require.Error(t, err)
				we, ok := errors.AsType[*core.WechatError](err)
				require.True(t, ok)
				assert.Equal(t, tt.wantErrCode, we.ErrCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantOpenID, resp.OpenID)
			assert.Equal(t, tt.wantSessionKey, resp.SessionKey)
			assert.Equal(t, tt.wantUnionID, resp.UnionID)
		})
	}
}

func TestGetPhoneNumber(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, getPhoneNumberPath, r.URL.Path)
		assert.Equal(t, "mp-token", r.URL.Query().Get("access_token"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"code": "phone-code"}, body)

		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok","phone_info":{"phoneNumber":"+86 13800000000","purePhoneNumber":"13800000000","countryCode":86,"watermark":{"appid":"test_appid","timestamp":1700000000}}}`))
	})

	_, err := client.GetPhoneNumber(context.Background(), GetPhoneNumberRequest{})
	require.Error(t, err)

	resp, err := client.GetPhoneNumber(context.Background(), GetPhoneNumberRequest{Code: "phone-code"})
	require.NoError(t, err)
	assert.Equal(t, "13800000000", resp.PhoneInfo.PurePhoneNumber)
	assert.Equal(t, 86, resp.PhoneInfo.CountryCode)
	assert.Equal(t, "test_appid", resp.PhoneInfo.Watermark.AppID)
	assert.Equal(t, int32(1), srv.tokenCalls.Load())
}

func TestGetPhoneNumber_RetriesOnInvalidToken(t *testing.T) {
	var calls atomic.Int32
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"errcode":40001,"errmsg":"invalid credential"}`))
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0,"phone_info":{"purePhoneNumber":"13800000000"}}`))
	})

	resp, err := client.GetPhoneNumber(context.Background(), GetPhoneNumberRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "13800000000", resp.PhoneInfo.PurePhoneNumber)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), srv.tokenCalls.Load())
}

func encryptUserData(t *testing.T, key, iv []byte, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	ciphertext, err := utils.AESCBCEncrypt(raw, key, iv)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

func TestDecryptUserInfo(t *testing.T) {
	client, _ := newTestClient(t, nil)
	key := []byte("1234567890abcdef")
	iv := []byte("abcdef1234567890")
	sessionKey := base64.StdEncoding.EncodeToString(key)
	ivStr := base64.StdEncoding.EncodeToString(iv)

	encrypted := encryptUserData(t, key, iv, map[string]any{
		"openId":    "o1",
		"nickName":  "Bob",
		"gender":    1,
		"watermark": map[string]any{"appid": "test_appid", "timestamp": 1700000000},
	})
	info, err := client.DecryptUserInfo(sessionKey, encrypted, ivStr)
	require.NoError(t, err)
	assert.Equal(t, "o1", info.OpenID)
	assert.Equal(t, "Bob", info.NickName)

	foreign := encryptUserData(t, key, iv, map[string]any{
		"openId":    "o1",
		"watermark": map[string]any{"appid": "other"},
	})
	_, err = client.DecryptUserInfo(sessionKey, foreign, ivStr)
	assert.ErrorIs(t, err, utils.ErrWatermarkMismatch)
}

func TestDecryptPhoneInfo(t *testing.T) {
	client, _ := newTestClient(t, nil)
	key := []byte("abcdef1234567890")
	iv := []byte("1234567890abcdef")

	encrypted := encryptUserData(t, key, iv, map[string]any{
		"phoneNumber":     "+86 13800000000",
		"purePhoneNumber": "13800000000",
		"countryCode":     86,
		"watermark":       map[string]any{"appid": "test_appid", "timestamp": 1700000000},
	})
	info, err := client.DecryptPhoneInfo(
		base64.StdEncoding.EncodeToString(key), encrypted, base64.StdEncoding.EncodeToString(iv))
	require.NoError(t, err)
	assert.Equal(t, "13800000000", info.PurePhoneNumber)
	assert.Equal(t, 86, info.CountryCode)
	assert.EqualValues(t, 1700000000, info.Watermark.Timestamp)
}
