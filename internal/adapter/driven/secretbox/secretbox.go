// Package secretbox seals persisted credential records with AES-256-GCM.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// sealedPrefix marks sealed payloads so plaintext records written before a
// key was configured are recognized instead of failing to decode.
const sealedPrefix = "sealed:"

// Sealer encrypts and decrypts record payloads. A Sealer with a nil key is a
// passthrough.
type Sealer struct {
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// New creates a Sealer from a hex-encoded 32-byte key. An empty string
// disables encryption.
func New(hexKey string) (*Sealer, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return &Sealer{}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, driven.ErrEncryptionKeyInvalid
	}
	return &Sealer{key: key}, nil
}

// Enabled reports whether payloads are encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal encrypts plaintext and returns a string containing the base64-encoded
// nonce (12 bytes) prepended to the ciphertext. Without a key it returns
// plaintext unchanged.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	if !s.Enabled() {
		return string(plaintext), nil
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Sealed input without a configured key is an error, as
// is plaintext input when a key is configured.
func (s *Sealer) Open(payload string) ([]byte, error) {
	encoded, sealed := strings.CutPrefix(payload, sealedPrefix)
	switch {
	case !sealed && !s.Enabled():
		return []byte(payload), nil
	case sealed && !s.Enabled():
		return nil, errors.New("record is encrypted but no key is configured")
	case !sealed:
		return nil, errors.New("record is not encrypted but a key is configured")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
