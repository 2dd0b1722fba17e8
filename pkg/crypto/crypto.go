package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const KeySize = 32

var (
	ErrKeySize         = errors.New("key must be 32 bytes (AES-256)")
	ErrCiphertextShort = errors.New("ciphertext too short")
)

// Sealer encrypts and authenticates payloads with AES-256-GCM. The
// associated data binds a ciphertext to the record it was stored under.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: gcm}, nil
}

// ParseKey decodes a hex encoded AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	return key, nil
}

// Seal returns nonce || ciphertext.
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (s *Sealer) Open(ciphertext, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, ErrCiphertextShort
	}

	return s.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], ad)
}

// Encrypt is a one-shot Seal without associated data.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	s, err := NewSealer(key)
	if err != nil {
		return nil, err
	}

	return s.Seal(plaintext, nil)
}

func Decrypt(ciphertext, key []byte) ([]byte, error) {
	s, err := NewSealer(key)
	if err != nil {
		return nil, err
	}

	return s.Open(ciphertext, nil)
}
