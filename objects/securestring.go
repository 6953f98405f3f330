package objects

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecureString holds sensitive text encrypted in memory under a random
// per-instance key (XChaCha20-Poly1305). On the wire it is re-encrypted with
// the session cipher.
type SecureString struct {
	key    []byte
	sealed []byte // nonce || ciphertext || tag
}

// NewSecureString protects plaintext.
// Returns an error if cryptographic operations fail.
func NewSecureString(plaintext string) (*SecureString, error) {
	return newSecureString([]byte(plaintext))
}

// NewSecureStringFromBytes protects plaintext and zeroes the input slice.
func NewSecureStringFromBytes(plaintext []byte) (*SecureString, error) {
	ss, err := newSecureString(plaintext)
	clear(plaintext)
	return ss, err
}

func newSecureString(plaintext []byte) (*SecureString, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate secure string key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create secure string cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate secure string nonce: %w", err)
	}
	return &SecureString{key: key, sealed: aead.Seal(nonce, nonce, plaintext, nil)}, nil
}

// Decrypt returns the plaintext value.
// The caller should clear the returned slice when done.
func (s *SecureString) Decrypt() ([]byte, error) {
	if len(s.key) == 0 {
		return nil, fmt.Errorf("secure string has been cleared")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("create secure string cipher: %w", err)
	}
	if len(s.sealed) < chacha20poly1305.NonceSizeX {
		return nil, io.ErrUnexpectedEOF
	}
	nonce, ciphertext := s.sealed[:chacha20poly1305.NonceSizeX], s.sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open secure string: %w", err)
	}
	return plaintext, nil
}

// Clear zeroes the key and ciphertext. Decrypt fails afterwards.
func (s *SecureString) Clear() {
	clear(s.key)
	clear(s.sealed)
	s.key = nil
	s.sealed = nil
}
