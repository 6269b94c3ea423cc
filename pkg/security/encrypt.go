package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// ErrInvalidKey indicates that the provided encryption key has the
// wrong length or is not valid hex.
var ErrInvalidKey = errors.New("encryption key must be 64 hex characters (32 bytes)")

// ErrCiphertextTooShort indicates that a ciphertext is too short to
// contain a nonce and authentication tag.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor encrypts and decrypts memory content with AES-256-GCM.
//
// The wire format is: nonce (12 bytes) || ciphertext || tag (16 bytes).
// Each call to Encrypt generates a fresh random nonce, so encrypting
// the same plaintext twice produces different ciphertexts.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("NewEncryptor: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("NewEncryptor: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// NewEncryptorFromHex creates an Encryptor from a 64-character hex key,
// which is the format used in configuration files and environment
// variables.
func NewEncryptorFromHex(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return NewEncryptor(key)
}

// GenerateKey returns a new random 32-byte key as a hex string.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("GenerateKey: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt encrypts plaintext and returns nonce||ciphertext||tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("Encrypt: %w", err)
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data produced by Encrypt.
//
// Returns an error if the data is truncated or the authentication tag
// does not verify, which indicates tampering or a wrong key.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	minLen := e.aead.NonceSize() + e.aead.Overhead()
	if len(data) < minLen {
		return nil, ErrCiphertextTooShort
	}

	nonce := data[:e.aead.NonceSize()]
	ciphertext := data[e.aead.NonceSize():]

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("Decrypt: %w", err)
	}

	return plaintext, nil
}

// EncryptString encrypts a string and returns the result as base64.
//
// Database TEXT columns hold the base64 form so encrypted and plaintext
// deployments share the same schema.
func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	data, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecryptString decrypts a base64 string produced by EncryptString.
func (e *Encryptor) DecryptString(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("DecryptString: %w", err)
	}

	plaintext, err := e.Decrypt(data)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
