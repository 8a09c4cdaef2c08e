// Package crypto holds the stateless primitives behind the secure store:
// Argon2id key derivation and AES-256-GCM authenticated encryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the derived key length in bytes (AES-256).
	KeySize = 32
	// SaltSize is the key-derivation salt length in bytes.
	SaltSize = 16

	nonceSize = 12
)

var (
	ErrKeyDerivation = errors.New("crypto: key derivation failed")
	ErrEncryption    = errors.New("crypto: encryption failed")
	ErrDecryption    = errors.New("crypto: decryption failed")
)

// Argon2id parameters: 1 pass over 64 MiB with 4 lanes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// SecretKey wraps derived key material so it can be wiped explicitly.
// Callers must treat the returned byte slice as borrowed and never retain it.
type SecretKey struct {
	b []byte
}

// Bytes exposes the raw key. Returns nil after Zero().
func (k *SecretKey) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.b
}

// Zero overwrites the backing key bytes and releases them.
// Safe to call more than once.
func (k *SecretKey) Zero() {
	if k == nil {
		return
	}
	for i := range k.b {
		k.b[i] = 0
	}
	k.b = nil
}

// DeriveKey derives a 256-bit key from a passphrase and a 16-byte salt
// using Argon2id.
func DeriveKey(passphrase string, salt []byte) (*SecretKey, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyDerivation, SaltSize, len(salt))
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeySize)
	return &SecretKey{b: key}, nil
}

// GenerateSalt returns a fresh random key-derivation salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return salt, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The returned blob is nonce || ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce || ciphertext blob produced by Encrypt.
// Any malformed blob or authentication failure is reported as ErrDecryption;
// corrupted plaintext is never returned.
func Decrypt(blob, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(blob) < nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrDecryption, len(blob))
	}
	plaintext, err := gcm.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
