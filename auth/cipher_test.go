package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const plainText = "plain text"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCipherTextIsDifferentThanInput(t *testing.T) {
	c := newTestCipher(t)

	encrypted := c.Encrypt(plainText)
	assert.NotEmpty(t, encrypted)
	assert.NotEqual(t, plainText, encrypted)
}

func TestCipherUsesFreshIV(t *testing.T) {
	c := newTestCipher(t)

	first := c.Encrypt(plainText)
	second := c.Encrypt(plainText)
	assert.NotEqual(t, first, second)

	raw, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, ivLength+16+tagLength)
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, input := range []string{"", "a", plainText, "exactly sixteen!", "upload~0123~2026-10-16T10:00:00.000Z~10", "ünïcödé ⟂"} {
		decrypted, ok := c.Decrypt(c.Encrypt(input))
		require.True(t, ok, "input %q", input)
		assert.Equal(t, input, decrypted)
	}
}

func TestCipherDecryptInvalidInput(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "not base64", input: "!!!not-base64!!!"},
		{name: "shorter than iv", input: base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "iv only", input: base64.StdEncoding.EncodeToString(make([]byte, ivLength))},
		{name: "unaligned ciphertext", input: base64.StdEncoding.EncodeToString(make([]byte, ivLength+5+tagLength))},
		{name: "unsigned ciphertext", input: base64.StdEncoding.EncodeToString(make([]byte, ivLength+2*16))},
		{name: "zero tag", input: base64.StdEncoding.EncodeToString(make([]byte, ivLength+16+tagLength))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decrypted, ok := c.Decrypt(tt.input)
			assert.False(t, ok)
			assert.Empty(t, decrypted)
		})
	}

	t.Run("foreign key", func(t *testing.T) {
		decrypted, ok := c.Decrypt(other.Encrypt(plainText))
		assert.False(t, ok)
		assert.Empty(t, decrypted)
	})
}

func TestCipherDecryptTamperedInput(t *testing.T) {
	c := newTestCipher(t)

	encrypted := c.Encrypt(plainText)
	// the first two characters may coincide; re-encrypt until they differ
	for encrypted[0] == encrypted[1] {
		encrypted = c.Encrypt(plainText)
	}

	tampered := encrypted[1:2] + encrypted[0:1] + encrypted[2:]
	decrypted, ok := c.Decrypt(tampered)
	assert.False(t, ok)
	assert.Empty(t, decrypted)
}

func TestCipherRejectsAnyFlippedBit(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c, err := NewCipher(zap.New(core))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(c.Encrypt(plainText))
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01

		decrypted, ok := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.False(t, ok, "byte %d", i)
		assert.Empty(t, decrypted)
	}
	assert.Equal(t, len(raw), logs.FilterMessage("Token failed integrity check").Len())
}

func TestCipherLogsStructuralFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c, err := NewCipher(zap.New(core))
	require.NoError(t, err)

	_, ok := c.Decrypt("%%%")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.Len())

	// empty input is not a structural failure
	_, ok = c.Decrypt("")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.Len())
}

func TestPKCS5Padding(t *testing.T) {
	for n := 0; n <= 32; n++ {
		data := make([]byte, n)
		padded := pkcs5Pad(data)
		assert.Zero(t, len(padded)%16)
		assert.Greater(t, len(padded), n)

		unpadded, ok := pkcs5Unpad(padded)
		require.True(t, ok)
		assert.Len(t, unpadded, n)
	}

	_, ok := pkcs5Unpad([]byte{1, 2, 3, 17})
	assert.False(t, ok)
}
