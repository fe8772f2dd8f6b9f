package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("1234567890abcdef")
	testIV  = []byte("abcdef1234567890")
)

func TestPKCS7(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		blockSize int
		wantLen   int
	}{
		{name: "partial block", data: []byte("hello"), blockSize: 8, wantLen: 8},
		{name: "aligned adds full block", data: []byte("12345678"), blockSize: 8, wantLen: 16},
		{name: "empty", data: nil, blockSize: 16, wantLen: 16},
		{name: "callback block size", data: make([]byte, 33), blockSize: 32, wantLen: 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			padded := PKCS7Pad(tt.data, tt.blockSize)
			assert.Len(t, padded, tt.wantLen)

			out, err := PKCS7Unpad(padded, tt.blockSize)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(out))
		})
	}
}

func TestPKCS7Unpad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: ErrInvalidPKCS7Data},
		{name: "not aligned", data: []byte{1, 2, 3}, wantErr: ErrInvalidPKCS7Data},
		{name: "zero padding", data: []byte{1, 2, 3, 0}, wantErr: ErrInvalidPKCS7Padding},
		{name: "padding larger than block", data: []byte{9, 9, 9, 9}, wantErr: ErrInvalidPKCS7Padding},
		{name: "inconsistent bytes", data: []byte{1, 2, 3, 4, 2, 2, 2, 3}, wantErr: ErrInvalidPKCS7Padding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PKCS7Unpad(tt.data, 4)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPKCS7Pad_DoesNotAlias(t *testing.T) {
	data := make([]byte, 3, 16)
	copy(data, "abc")
	padded := PKCS7Pad(data, 8)
	padded[0] = 'z'
	assert.Equal(t, "abc", string(data))
}

func TestAESCBC_RoundTrip(t *testing.T) {
	plaintext := []byte(`{"openId":"o1"}`)

	ciphertext, err := AESCBCEncrypt(plaintext, testKey, testIV)
	require.NoError(t, err)
	assert.Len(t, ciphertext, 16)

	decrypted, err := AESCBCDecrypt(ciphertext, testKey, testIV)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESCBC_InvalidInput(t *testing.T) {
	_, err := AESCBCDecrypt([]byte("short"), testKey, testIV)
	assert.ErrorIs(t, err, ErrInvalidBlockSize)

	_, err = AESCBCEncrypt([]byte("x"), testKey, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidIVSize)

	_, err = AESCBCDecrypt(make([]byte, 16), []byte("bad-key"), testIV)
	assert.ErrorContains(t, err, "new cipher")
}
