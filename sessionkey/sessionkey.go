// Package sessionkey implements the PSRP session key cipher used to protect
// SecureString values on the wire.
//
// After key exchange both peers hold a 256-bit AES key. SecureString
// payloads are encrypted with AES-256 in CBC mode, a zero initialization
// vector and PKCS#7 padding, then base64 encoded into the <SS> element by the
// serializer.
//
//	key, raw, _ := sessionkey.Generate()
//	ser := serialization.NewSerializer(serialization.WithEncryption(key))
//	// raw is sent to the peer during key exchange
package sessionkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the session key length in bytes.
const KeySize = 32

var (
	// ErrInvalidKey is returned for a key that is not KeySize bytes.
	ErrInvalidKey = errors.New("invalid session key")
	// ErrInvalidPadding is returned when decrypted data has no valid PKCS#7 padding.
	ErrInvalidPadding = errors.New("invalid padding")
	// ErrInvalidCiphertext is returned for ciphertext that is not a whole
	// number of blocks.
	ErrInvalidCiphertext = errors.New("ciphertext is not a multiple of the block size")
)

// Key is an AES-256-CBC session cipher. It is safe for concurrent use.
type Key struct {
	block cipher.Block
}

// New creates a cipher from a raw 32 byte session key.
func New(key []byte) (*Key, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &Key{block: block}, nil
}

// Generate creates a cipher with a random session key. The raw key is
// returned for transfer to the peer.
func Generate() (*Key, []byte, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, nil, fmt.Errorf("generate session key: %w", err)
	}
	k, err := New(raw)
	if err != nil {
		return nil, nil, err
	}
	return k, raw, nil
}

// ParseHex creates a cipher from a hex encoded key. Whitespace is ignored.
func ParseHex(s string) (*Key, error) {
	raw, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer clear(raw)
	return New(raw)
}

// Encrypt pads data with PKCS#7 and encrypts it.
func (k *Key) Encrypt(data []byte) ([]byte, error) {
	bs := k.block.BlockSize()
	pad := bs - len(data)%bs
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}

	iv := make([]byte, bs)
	cipher.NewCBCEncrypter(k.block, iv).CryptBlocks(out, out)
	return out, nil
}

// Decrypt decrypts data and strips its PKCS#7 padding.
func (k *Key) Decrypt(data []byte) ([]byte, error) {
	bs := k.block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(data))
	}

	out := make([]byte, len(data))
	iv := make([]byte, bs)
	cipher.NewCBCDecrypter(k.block, iv).CryptBlocks(out, data)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs {
		clear(out)
		return nil, ErrInvalidPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			clear(out)
			return nil, ErrInvalidPadding
		}
	}
	return out[:len(out)-pad], nil
}
