// Package sealer encrypts small secrets, such as OAuth tokens, before they
// are written to the database.
package sealer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrCiphertextInvalid is returned when a sealed value cannot be opened.
var ErrCiphertextInvalid = errors.New("sealed value is invalid or was sealed with another key")

// Sealer seals values with NaCl secretbox. The random nonce is prepended
// to each ciphertext.
type Sealer struct {
	key [keySize]byte
}

// New builds a Sealer from a 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("sealer key must be %d bytes, got %d", keySize, len(key))
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// NewFromHex builds a Sealer from a hex-encoded 32-byte key.
func NewFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode sealer key: %w", err)
	}
	return New(key)
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCiphertextInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrCiphertextInvalid
	}
	return out, nil
}
