package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ciphertextPrefix marks values written by Encryptor. Values without it are
// treated as plaintext stored before a key was configured.
const ciphertextPrefix = "enc:v1:"

// FieldCipher protects free-text health fields at rest
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

// Encryptor handles AES-256-GCM encryption for check-in notes
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates a new encryptor with a 32-byte key for AES-256
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// NewFieldCipher returns an Encryptor for a configured key, or a pass-through
// cipher when key is empty.
func NewFieldCipher(key string) (FieldCipher, error) {
	if key == "" {
		return PlainCipher{}, nil
	}
	return NewEncryptor([]byte(key))
}

// Encrypt encrypts plaintext using AES-256-GCM
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce is stored in front of the sealed data
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Unprefixed values are returned unchanged.
func (e *Encryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, ciphertextPrefix) {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// PlainCipher stores values unchanged. Used when no encryption key is configured.
type PlainCipher struct{}

func (PlainCipher) Encrypt(plaintext string) (string, error) { return plaintext, nil }

func (PlainCipher) Decrypt(stored string) (string, error) {
	if strings.HasPrefix(stored, ciphertextPrefix) {
		return "", fmt.Errorf("value is encrypted but no encryption key is configured")
	}
	return stored, nil
}
