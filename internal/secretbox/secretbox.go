// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package secretbox encrypts short secrets for storage at rest using
// AES-256-GCM with a key derived from the application secret key.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrInvalidCiphertext is returned when a stored value cannot be decrypted.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Box seals and opens secrets with a fixed derived key.
type Box struct {
	aead cipher.AEAD
}

// New derives a 32-byte AES key from the given secret key via SHA256.
// Rotating the secret key makes previously sealed values unreadable.
func New(secretKey string) (*Box, error) {
	if secretKey == "" {
		return nil, errors.New("secret key is required")
	}
	key := sha256.Sum256([]byte(secretKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 string with the nonce prepended.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Tampered or truncated input
// returns ErrInvalidCiphertext.
func (b *Box) Open(encoded string) (string, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := b.aead.NonceSize()
	if len(sealed) < ns {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := b.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
