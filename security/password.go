package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
)

// Stored password format: [16 bytes salt][64 bytes SHA-512 digest].
// The salt is generated once at hash time and persisted with the
// digest; verification re-derives the digest with the stored salt and
// compares in constant time.
const (
	saltSize       = 16
	hashedPassSize = saltSize + sha512.Size
)

// HashPassword derives a salted digest suitable for storage.
func HashPassword(password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	h := sha512.New()
	h.Write(salt)
	h.Write([]byte(password))

	return h.Sum(salt[:saltSize:saltSize]), nil
}

// VerifyPassword checks a password against a stored salted digest
// produced by HashPassword, using constant-time comparison.
func VerifyPassword(password string, stored []byte) bool {
	if len(stored) != hashedPassSize {
		return false
	}

	h := sha512.New()
	h.Write(stored[:saltSize])
	h.Write([]byte(password))

	return hmac.Equal(h.Sum(nil), stored[saltSize:])
}
