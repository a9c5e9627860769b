// Package secret seals short strings (the upstream bearer token) at rest.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a sealed value inside a settings file.
const Prefix = "enc:"

type Box struct{ aead cipher.AEAD }

// New returns a Box for a 16, 24 or 32 byte AES key.
func New(key []byte) (*Box, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	a, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: a}, nil
}

// Seal encrypts plaintext and returns Prefix followed by base64(nonce|ct).
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Prefix + base64.RawStdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Open reverses Seal. Values without Prefix are returned unchanged, so a
// file written before a key was configured still loads.
func (b *Box) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	buf, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", err
	}
	ns := b.aead.NonceSize()
	if len(buf) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	pt, err := b.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(pt), nil
}

func IsSealed(value string) bool { return strings.HasPrefix(value, Prefix) }
