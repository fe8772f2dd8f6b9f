package utils

import (
	"crypto/rand"
	"fmt"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString 由字母数字组成的随机串，用作 noncestr / nonce_str / 回调加密的随机前缀
func RandomString(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("length must be non-negative")
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	// 丢弃 >= 248 的字节，保证 62 个字符等概率
	const limit = 256 - 256%len(nonceAlphabet)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
