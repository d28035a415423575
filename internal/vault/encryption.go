// Package vault seals logon details at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of the AES-256 key in bytes.
	KeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be at least 32 characters")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor seals values with AES-256-GCM under a key derived per profile.
type Encryptor struct {
	masterKey []byte
}

// NewEncryptor creates a new Encryptor with the given master secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidKey
	}
	hash := sha256.Sum256([]byte(secret))
	return &Encryptor{masterKey: hash[:]}, nil
}

// DeriveKey derives the key for a browser profile with PBKDF2.
func (e *Encryptor) DeriveKey(profile string) []byte {
	salt := "profile:" + profile
	return pbkdf2.Key(e.masterKey, []byte(salt), PBKDF2Iterations, KeySize, sha256.New)
}

func (e *Encryptor) gcm(profile string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.DeriveKey(profile))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext for profile and returns the ciphertext and nonce.
func (e *Encryptor) Encrypt(plaintext, profile string) (ciphertext, nonce []byte, err error) {
	gcm, err := e.gcm(profile)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	// The profile is bound as additional data.
	ciphertext = gcm.Seal(nil, nonce, []byte(plaintext), []byte(profile))
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed for profile.
func (e *Encryptor) Decrypt(ciphertext, nonce []byte, profile string) (string, error) {
	if len(ciphertext) == 0 || len(nonce) == 0 {
		return "", ErrInvalidCiphertext
	}

	gcm, err := e.gcm(profile)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(profile))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
