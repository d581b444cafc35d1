package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	corelog "github.com/ebogdum/lfsauth/core/log"
)

const (
	keySize    = 16 // AES-128
	macKeySize = 32
	ivLength   = aes.BlockSize
	tagLength  = sha256.Size
)

// Cipher encrypts token payloads with process-lifetime AES-128 and HMAC-SHA256 keys.
// The keys are never persisted, so tokens do not survive a restart.
type Cipher struct {
	block  cipher.Block
	macKey []byte
	logger *zap.Logger
}

// NewCipher creates a cipher with freshly generated random keys
func NewCipher(logger *zap.Logger) (*Cipher, error) {
	key := make([]byte, keySize+macKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate cipher key: %w", err)
	}
	return newCipherWithKeys(key[:keySize], key[keySize:], logger)
}

func newCipherWithKeys(key, macKey []byte, logger *zap.Logger) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES cipher: %w", err)
	}
	if len(macKey) < macKeySize {
		return nil, fmt.Errorf("MAC key must be at least %d bytes", macKeySize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cipher{block: block, macKey: macKey, logger: logger}, nil
}

// Encrypt returns base64(IV ‖ AES-CBC(PKCS#5(plaintext)) ‖ HMAC-SHA256(IV ‖ ciphertext))
// using a fresh IV
func (c *Cipher) Encrypt(plaintext string) string {
	padded := pkcs5Pad([]byte(plaintext))

	out := make([]byte, ivLength+len(padded), ivLength+len(padded)+tagLength)
	iv := out[:ivLength]
	// crypto/rand.Read never returns an error
	_, _ = rand.Read(iv)

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[ivLength:], padded)
	return base64.StdEncoding.EncodeToString(c.sign(out))
}

// sign appends the MAC of data to data
func (c *Cipher) sign(data []byte) []byte {
	return append(data, c.mac(data)...)
}

func (c *Cipher) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.macKey)
	h.Write(data)
	return h.Sum(nil)
}

// Decrypt reverses Encrypt. Any malformed, truncated or tampered input yields
// ("", false); this is an expected outcome for stale or foreign tokens.
func (c *Cipher) Decrypt(input string) (string, bool) {
	if input == "" {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		c.logger.Error("Token is not valid base64",
			zap.String("token", corelog.SanitizeToken(input)),
			zap.Error(err))
		return "", false
	}

	if len(raw) < ivLength+aes.BlockSize+tagLength || (len(raw)-ivLength-tagLength)%aes.BlockSize != 0 {
		c.logger.Error("Token has invalid ciphertext length",
			zap.String("token", corelog.SanitizeToken(input)),
			zap.Int("length", len(raw)))
		return "", false
	}

	signed, tag := raw[:len(raw)-tagLength], raw[len(raw)-tagLength:]
	if !hmac.Equal(tag, c.mac(signed)) {
		c.logger.Error("Token failed integrity check",
			zap.String("token", corelog.SanitizeToken(input)))
		return "", false
	}

	body := signed[ivLength:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, signed[:ivLength]).CryptBlocks(plain, body)

	unpadded, ok := pkcs5Unpad(plain)
	if !ok {
		c.logger.Error("Token decryption failed with bad padding",
			zap.String("token", corelog.SanitizeToken(input)))
		return "", false
	}
	return string(unpadded), true
}

func pkcs5Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
