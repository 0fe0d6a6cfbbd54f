// Package crypto encrypts provider access tokens at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned by NewEncryptor when the key is not a valid
	// AES-256 key. Callers treat this as fatal at startup.
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")

	// ErrCorruptCredential is returned by Decrypt when the stored blob cannot
	// be authenticated. It must surface as a hard item error, never as an
	// empty credential.
	ErrCorruptCredential = errors.New("credential blob failed authentication")
)

// Encryptor performs AES-256-GCM encryption with a random nonce per call,
// so encrypting the same plaintext twice yields different ciphertext.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an encryptor from a 32-byte key.
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt returns a base64 blob containing nonce || ciphertext || tag.
// An empty plaintext encrypts to an empty blob.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered blob yields
// ErrCorruptCredential.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrCorruptCredential, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: blob shorter than nonce", ErrCorruptCredential)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}

	return string(plaintext), nil
}
