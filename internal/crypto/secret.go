// Package crypto seals config secrets (wallet API key, relay token, DSN) with
// AES-256-GCM so they can sit in the config file at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks a sealed value: "aes-gcm:" + base64(nonce|ciphertext|tag).
const SealedPrefix = "aes-gcm:"

// ErrNoKey is returned when a sealed value is found but no key is configured.
var ErrNoKey = errors.New("sealed secret found but no encryption key is set")

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts plain with key. Empty input stays empty.
func Seal(plain, key string) (string, error) {
	if plain == "" {
		return "", nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Values without the prefix are
// returned unchanged so plain secrets keep working.
func Open(value, key string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if key == "" {
		return "", ErrNoKey
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed secret: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	n := gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("sealed secret too short")
	}
	plain, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", errors.New("open sealed secret: invalid key or corrupted data")
	}
	return string(plain), nil
}

func newGCM(key string) (cipher.AEAD, error) {
	kb, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kb)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ParseKey accepts a 32-byte key as 64 hex chars, 44 base64 chars or 32 raw bytes.
func ParseKey(input string) ([]byte, error) {
	if len(input) == 64 {
		if b, err := hex.DecodeString(input); err == nil {
			return b, nil
		}
	}
	if len(input) == 44 && strings.HasSuffix(input, "=") {
		if b, err := base64.StdEncoding.DecodeString(input); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	if len(input) == 32 {
		return []byte(input), nil
	}
	return nil, errors.New("encryption key must be 32 bytes (64 hex chars, 44 base64 chars or 32 raw bytes)")
}
