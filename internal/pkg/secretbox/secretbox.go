package secretbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrEmptySecret   = errors.New("encryption secret is empty")
	ErrInvalidSealed = errors.New("sealed value is invalid")
)

// Box seals short secrets (API keys, tokens) for storage in the database.
type Box struct {
	key [32]byte
}

// New derives the box key from an arbitrary length secret.
func New(secret string) (*Box, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Box{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plaintext and returns base64(nonce || box). An empty
// plaintext seals to an empty string so blank settings stay blank.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidSealed
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidSealed
	}
	return string(plain), nil
}
