// Package vaultcrypto implements the zero-knowledge envelope used for vault
// payloads and recovery backups: Argon2id key derivation and AES-256-GCM with
// the authentication tag stored beside the ciphertext.
//
// The server never calls Seal or Open with an owner secret; both run on the
// client (cmd/keepsake) or inside the release gate with material presented by
// a beneficiary for a single request.
package vaultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4

	KeyLength  = 32
	SaltLength = 16
	IVLength   = 12
	TagLength  = 16
)

var (
	// ErrAuthentication covers every decryption failure: wrong key, tampered
	// or truncated ciphertext, bad tag. Callers cannot tell them apart.
	ErrAuthentication = errors.New("vaultcrypto: authentication failed")

	ErrInvalidKeyLength = errors.New("vaultcrypto: key must be 32 bytes")
	ErrInvalidIVLength  = errors.New("vaultcrypto: iv must be 12 bytes")
	ErrSaltTooShort     = errors.New("vaultcrypto: salt must be at least 16 bytes")
	ErrEmptySecret      = errors.New("vaultcrypto: secret is empty")
)

// DeriveKey derives a 32-byte key from secret with Argon2id.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if len(salt) < SaltLength {
		return nil, ErrSaltTooShort
	}
	return argon2.IDKey(secret, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength), nil
}

func NewSalt() ([]byte, error) {
	return random(SaltLength)
}

// NewIV returns a fresh 96-bit nonce. A nonce is never reused with a key.
func NewIV() ([]byte, error) {
	return random(IVLength)
}

func random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("vaultcrypto: read random: %w", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns the ciphertext and the
// 16-byte tag separately.
func Encrypt(plaintext, key, iv []byte) (ciphertext, authTag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	if len(iv) != IVLength {
		return nil, nil, ErrInvalidIVLength
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagLength
	return sealed[:split], sealed[split:], nil
}

// Decrypt verifies the tag and returns the plaintext. Any failure, including
// malformed inputs, is ErrAuthentication and yields no plaintext.
func Decrypt(ciphertext, authTag, key, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVLength || len(authTag) != TagLength {
		return nil, ErrAuthentication
	}

	sealed := make([]byte, 0, len(ciphertext)+TagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Wipe zeroes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
