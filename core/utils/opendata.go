package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrWatermarkMismatch 开放数据的水印 appid 与当前小程序不符
var ErrWatermarkMismatch = errors.New("watermark appid mismatch")

// Watermark 开放数据中的水印
type Watermark struct {
	AppID     string `json:"appid"`
	Timestamp int64  `json:"timestamp"`
}

// DecryptOpenData 用 session_key 解密小程序开放数据（wx.getUserInfo 等）并解析为 T
//
// 三个参数均为 Base64。appID 非空时校验 watermark.appid，防止其他小程序的数据被重放。
func DecryptOpenData[T any](appID, sessionKey, encryptedData, iv string) (T, error) {
	var zero T

	plaintext, err := decryptOpenData(sessionKey, encryptedData, iv)
	if err != nil {
		return zero, err
	}

	if appID != "" {
		var envelope struct {
			Watermark Watermark `json:"watermark"`
		}
		if err := json.Unmarshal(plaintext, &envelope); err != nil {
			return zero, fmt.Errorf("unmarshal json: %w", err)
		}
		if envelope.Watermark.AppID != appID {
			return zero, fmt.Errorf("%w: got %q", ErrWatermarkMismatch, envelope.Watermark.AppID)
		}
	}

	var out T
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return zero, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

func decryptOpenData(sessionKey, encryptedData, iv string) ([]byte, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"session key", sessionKey},
		{"encrypted data", encryptedData},
		{"iv", iv},
	}
	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		b, err := base64.StdEncoding.DecodeString(f.value)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
		decoded[i] = b
	}

	plaintext, err := AESCBCDecrypt(decoded[1], decoded[0], decoded[2])
	if err != nil {
		return nil, fmt.Errorf("aes decrypt: %w", err)
	}
	return plaintext, nil
}
