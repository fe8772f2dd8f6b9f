package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	ErrInvalidBlockSize    = errors.New("invalid block size")
	ErrInvalidIVSize       = errors.New("invalid iv size")
	ErrInvalidPKCS7Data    = errors.New("invalid PKCS7 data")
	ErrInvalidPKCS7Padding = errors.New("invalid PKCS7 padding")
)

// AESCBCEncrypt AES-CBC 加密，按 16 字节块做 PKCS7 填充（小程序开放数据）
func AESCBCEncrypt(plaintext, key, iv []byte) ([]byte, error) {
	return cbcCrypt(PKCS7Pad(plaintext, aes.BlockSize), key, iv, true)
}

// AESCBCDecrypt AESCBCEncrypt 的逆操作
func AESCBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	plaintext, err := cbcCrypt(ciphertext, key, iv, false)
	if err != nil {
		return nil, err
	}
	return PKCS7Unpad(plaintext, aes.BlockSize)
}

// cbcCrypt 不处理填充；回调消息用 32 字节块填充，与开放数据不同，因此由调用方负责
func cbcCrypt(data, key, iv []byte, encrypt bool) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIVSize
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidBlockSize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	var mode cipher.BlockMode
	if encrypt {
		mode = cipher.NewCBCEncrypter(block, iv)
	} else {
		mode = cipher.NewCBCDecrypter(block, iv)
	}
	out := make([]byte, len(data))
	mode.CryptBlocks(out, data)
	return out, nil
}

// PKCS7Pad 返回新切片，data 恰为整块时追加一个完整的填充块
func PKCS7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

// PKCS7Unpad 校验并去除填充，不修改 data
func PKCS7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPKCS7Data
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPKCS7Padding
	}
	pad := data[len(data)-n:]
	if !bytes.Equal(pad, bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, ErrInvalidPKCS7Padding
	}
	return data[:len(data)-n], nil
}
