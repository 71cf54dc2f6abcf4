// Package secrets opens provider credentials sealed for transit.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SecretOpener = (*Sealer)(nil)

const (
	// SealedPrefix marks a value as sealed
	SealedPrefix = "sealed:"

	// sealVersion is the version byte of the sealed format
	sealVersion = 0x01
)

var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("sealing key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the sealed blob is too small.
	ErrInvalidBlobSize = errors.New("sealed blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported sealed blob version")

	// ErrOpenFailed is returned when opening fails (wrong key or corrupted data).
	ErrOpenFailed = errors.New("failed to open sealed secret")

	// ErrNoKey is returned when a sealed value arrives but no key is configured.
	ErrNoKey = errors.New("sealed secret received but no key configured")
)

// Sealer seals and opens secrets with XChaCha20-Poly1305.
// Sealed values are "sealed:" || base64(version(1) || nonce(24) || ciphertext).
// Values without the prefix are returned unchanged by Open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer with the given 32-byte key. A nil key creates a
// sealer that passes plain values through and rejects sealed ones.
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		return &Sealer{}, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create xchacha20-poly1305: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromBase64 creates a sealer from a base64 encoded key.
// An empty string yields a pass-through sealer.
func NewSealerFromBase64(encoded string) (*Sealer, error) {
	if encoded == "" {
		return NewSealer(nil)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return NewSealer(key)
}

// Seal encrypts a secret into its transit form.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.aead == nil {
		return "", ErrNoKey
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.aead.Overhead())
	blob = append(blob, sealVersion)
	blob = append(blob, nonce...)
	blob = s.aead.Seal(blob, nonce, []byte(plaintext), nil)

	return SealedPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Open returns the plaintext of a sealed value, or the value itself when it
// is not sealed.
func (s *Sealer) Open(value string) (string, error) {
	encoded, sealed := strings.CutPrefix(value, SealedPrefix)
	if !sealed {
		return value, nil
	}
	if s.aead == nil {
		return "", ErrNoKey
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(blob) < 1+nonceSize+s.aead.Overhead() {
		return "", ErrInvalidBlobSize
	}
	if blob[0] != sealVersion {
		return "", fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	plaintext, err := s.aead.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plaintext), nil
}
