// Package phi encrypts patient identifiers before they reach a snapshot
// store. Values are sealed with AES-256-GCM and carried as prefixed base64
// strings so encrypted and plain values can coexist in one document.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Prefix marks an encrypted value.
const Prefix = "enc:v1:"

// Encryptor seals and opens identifier strings.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor with the given 32-byte AES-256 key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// ParseKey accepts a 32-byte key as 64 hex characters or standard base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("phi key: expected 64 hex characters or base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("phi key: must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// IsEncrypted reports whether v carries the encrypted prefix.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// Encrypt seals plaintext. Empty and already encrypted values pass through.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi encrypt: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the prefix are
// returned unchanged so rows written before encryption was enabled still load.
func (e *Encryptor) Decrypt(v string) (string, error) {
	if !IsEncrypted(v) {
		return v, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, Prefix))
	if err != nil {
		return "", fmt.Errorf("phi decrypt: base64 decode: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("phi decrypt: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("phi decrypt: %w", err)
	}
	return string(plaintext), nil
}
