// Package security provides content hashing and symmetric encryption
// for memory records.
//
// Hashing uses SHA-256 over plaintext content and is used both for
// duplicate detection and for integrity verification. Encryption uses
// AES-256-GCM with a random nonce per message.
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash computes the SHA-256 digest of content and returns it as a
// lowercase hex string.
//
// The hash is always computed over plaintext, before any encryption is
// applied, so integrity checks remain valid regardless of the
// encryption configuration.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// HashEqual compares two hex digests in constant time.
//
// Using a constant-time comparison avoids leaking digest prefixes
// through timing when hashes are compared against untrusted input.
func HashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
