// Package crypto encrypts integration secrets at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// hkdfInfo binds derived keys to their use.
const hkdfInfo = "contractlens/integration-secrets/v1"

// Errors returned by Encrypt and Decrypt.
var (
	ErrKeySize           = errors.New("crypto: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Encrypt encrypts plaintext using AES-256-GCM. Returns nonce||ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data produced by Encrypt (nonce||ciphertext).
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}

	return plaintext, nil
}

// DeriveKey expands a master secret into a 32-byte AES key with HKDF-SHA256.
func DeriveKey(masterKey string) []byte {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo))
	// HKDF can only fail after 255*32 bytes of output.
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}

// EncryptString encrypts a secret with a key derived from masterKey.
func EncryptString(secret, masterKey string) ([]byte, error) {
	return Encrypt([]byte(secret), DeriveKey(masterKey))
}

// DecryptString reverses EncryptString.
func DecryptString(ciphertext []byte, masterKey string) (string, error) {
	pt, err := Decrypt(ciphertext, DeriveKey(masterKey))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}
