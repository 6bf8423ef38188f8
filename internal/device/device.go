// Package device derives and compares the fingerprint that binds an account to
// the client it registered from.
//
// The key is a plain sha256 over client supplied bytes. It gives consistency,
// not forgery resistance: a client that controls its own clientInfo can
// reproduce it.
package device

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// KeyLength is the length of a hex encoded device key.
const KeyLength = sha256.Size * 2

// DeriveKey returns the lowercase hex sha256 of clientInfo.
func DeriveKey(clientInfo []byte) string {
	sum := sha256.Sum256(clientInfo)
	return hex.EncodeToString(sum[:])
}

// Matches compares a freshly derived key against the stored one in constant time.
func Matches(derived, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(derived), []byte(stored)) == 1
}

// ValidKey reports whether s looks like a key produced by DeriveKey.
func ValidKey(s string) bool {
	if len(s) != KeyLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
