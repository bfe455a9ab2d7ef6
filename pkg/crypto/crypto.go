package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncryptedPrefix marks values produced by Cipher.Encrypt.
const EncryptedPrefix = "enc:v1:"

var ErrEmptyKey = errors.New("encryption key is empty")

// Cipher seals short secrets with AES-256-GCM. A nil *Cipher passes values
// through unchanged, so callers can hold one unconditionally.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES-256 key from passphrase with SHA-256.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	key := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: gcm}, nil
}

// Encrypt returns EncryptedPrefix + base64(nonce | ciphertext).
func (c *Cipher) Encrypt(plainText string) (string, error) {
	if c == nil || plainText == "" {
		return plainText, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without EncryptedPrefix
// are returned as stored.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if c == nil {
		return "", errors.New("encrypted value found but no encryption key is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode encrypted value: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("encrypted value is truncated")
	}

	nonce, cipherText := data[:nonceSize], data[nonceSize:]
	plainText, err := c.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt value: %w", err)
	}
	return string(plainText), nil
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}
