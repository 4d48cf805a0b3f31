package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

const (
	nonceSize = 12
	tagSize   = 16
)

// ErrIntegrity is returned by Open when authentication of an envelope fails.
var ErrIntegrity = errors.New("vault: integrity check failed")

// ErrInvalidKey is returned by New when the key is not exactly KeySize bytes.
var ErrInvalidKey = errors.New("vault: key must be 32 bytes")

// Envelope is the encrypted form of a single field.
//
// Nonce and Tag are stored alongside the ciphertext rather than concatenated
// into it, so a persisted envelope can be validated structurally before any
// cryptographic work happens.
type Envelope struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Cipher seals and opens field envelopes under one AES-256-GCM key.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %v", err)
	}
	return &Cipher{aead: aead}, nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: keygen: %v", err)
	}
	return key, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) (Envelope, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("vault: nonce: %v", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	// GCM appends the tag to the ciphertext; split it back out.
	split := len(sealed) - tagSize
	return Envelope{
		Nonce:      nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Open decrypts an envelope. Any modification of nonce, tag, or ciphertext
// yields ErrIntegrity; the plaintext is never partially revealed.
func (c *Cipher) Open(env Envelope) ([]byte, error) {
	if len(env.Nonce) != nonceSize || len(env.Tag) != tagSize {
		return nil, ErrIntegrity
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	plaintext, err := c.aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
