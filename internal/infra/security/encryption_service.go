// Package security seals session-scoped records stored outside the process.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrTampered is returned when a sealed value fails authentication, including
// when it is opened under a different binding than it was sealed with.
var ErrTampered = errors.New("sealed value failed authentication")

// EncryptionService seals values with AES-GCM. Each value is bound to a
// caller-chosen string (the storage key) passed as associated data.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a 16, 24 or 32 byte key.
func NewEncryptionService(key string) (*EncryptionService, error) {
	k := []byte(key)
	switch len(k) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(k))
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext) of plaintext bound to binding.
func (e *EncryptionService) Seal(plaintext []byte, binding string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, plaintext, []byte(binding))
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. The binding must match the one used to seal.
func (e *EncryptionService) Open(sealed, binding string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return nil, ErrTampered
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], []byte(binding))
	if err != nil {
		return nil, ErrTampered
	}
	return pt, nil
}
