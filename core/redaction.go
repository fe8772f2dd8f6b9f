package core

import (
	"encoding/json"
	"net/url"
	"strings"
)

const redactedValue = "***"

// 查询参数与 JSON 字段共用一张表，比较时忽略大小写
var sensitiveKeys = map[string]struct{}{
	"access_token":            {},
	"appsecret":               {},
	"app_secret":              {},
	"authorization":           {},
	"client_secret":           {},
	"code":                    {},
	"corpsecret":              {},
	"js_code":                 {},
	"refresh_token":           {},
	"secret":                  {},
	"session_key":             {},
	"jsapi_ticket":            {},
	"ticket":                  {},
	"token":                   {},
	"sign":                    {},
	"signature":               {},
	"paysign":                 {},
	"key":                     {},
	"encodingaeskey":          {},
	"encrypted_data":          {},
	"encrypteddata":           {},
	"phonenumber":             {},
	"purephonenumber":         {},
	"suite_access_token":      {},
	"component_verify_ticket": {},
}

// IsSensitiveKey 判断参数名或 JSON 字段名是否需要脱敏
func IsSensitiveKey(key string) bool {
	_, exists := sensitiveKeys[strings.ToLower(key)]
	return exists
}

// RedactURLQuery 脱敏 URL 查询参数中的敏感字段。
func RedactURLQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	for key, values := range query {
		if !IsSensitiveKey(key) {
			continue
		}
		for i := range values {
			values[i] = redactedValue
		}
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// RedactJSONBody 脱敏 JSON 请求/响应体，嵌套对象和数组同样处理。
// 非 JSON 内容只返回长度占位，避免把原文写进日志。
func RedactJSONBody(body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "<non-json body>"
	}
	out, err := json.Marshal(redactValue(doc))
	if err != nil {
		return "<unencodable body>"
	}
	return string(out)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for key, inner := range t {
			if IsSensitiveKey(key) {
				if inner != nil && inner != "" {
					t[key] = redactedValue
				}
				continue
			}
			t[key] = redactValue(inner)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	default:
		return v
	}
}
