package security

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, KeySize*2)

	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)

	// Two keys should never collide.
	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestNewEncryptor_InvalidKey(t *testing.T) {
	_, err := NewEncryptor(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewEncryptorFromHex("not-hex")
	assert.Error(t, err)

	_, err = NewEncryptorFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc, err := NewEncryptorFromHex(key)
	require.NoError(t, err)

	plaintext := []byte("the user's darkest secret")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(ciphertext, plaintext))

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptor_NonceVaries(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromHex(key)
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncryptor_TamperDetection(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromHex(key)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = enc.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptor_CiphertextTooShort(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromHex(key)
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncryptor_WrongKey(t *testing.T) {
	keyA, err := GenerateKey()
	require.NoError(t, err)
	keyB, err := GenerateKey()
	require.NoError(t, err)

	encA, err := NewEncryptorFromHex(keyA)
	require.NoError(t, err)
	encB, err := NewEncryptorFromHex(keyB)
	require.NoError(t, err)

	ciphertext, err := encA.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = encB.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptor_StringRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromHex(key)
	require.NoError(t, err)

	encoded, err := enc.EncryptString("text column content")
	require.NoError(t, err)
	assert.NotEqual(t, "text column content", encoded)

	decoded, err := enc.DecryptString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "text column content", decoded)
}
