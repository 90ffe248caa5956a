// Package secrets seals user LLM credentials with NaCl secretbox
// (XSalsa20-Poly1305). Credentials are stored as opaque base64 tokens and
// decrypted only at the moment of use.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrBadKey     = errors.New("encryption key must be 32 bytes, base64-encoded")
	ErrDecryption = errors.New("credential decryption failed")
)

const nonceSize = 24

// Keeper encrypts and decrypts credential blobs with a fixed symmetric key.
type Keeper struct {
	key [32]byte
}

// NewKeeper parses a base64-encoded 32-byte key.
func NewKeeper(encodedKey string) (*Keeper, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadKey, len(raw))
	}
	k := &Keeper{}
	copy(k.key[:], raw)
	return k, nil
}

// GenerateKey returns a fresh base64-encoded key, for first-run setup.
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Encrypt seals plaintext into an opaque token: base64(nonce || box).
func (k *Keeper) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &k.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Any malformed or tampered input
// yields ErrDecryption.
func (k *Keeper) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecryption
	}
	if len(raw) < nonceSize {
		return "", ErrDecryption
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k.key)
	if !ok {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
