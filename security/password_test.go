package security

import (
	"bytes"
	"testing"
)

func TestHashPasswordVerifyRoundTrip(t *testing.T) {
	stored, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if len(stored) != hashedPassSize {
		t.Fatalf("stored length: expected %d, got %d", hashedPassSize, len(stored))
	}

	if !VerifyPassword("hunter2", stored) {
		t.Error("correct password must verify against its own stored digest")
	}
	if VerifyPassword("hunter3", stored) {
		t.Error("wrong password must not verify")
	}
}

func TestHashPasswordSaltsAreUnique(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Error("two hashes of the same password must differ by salt")
	}

	// Both digests still verify: the salt is persisted with the digest.
	if !VerifyPassword("same-password", a) || !VerifyPassword("same-password", b) {
		t.Error("both stored digests must verify with their own salt")
	}
}

func TestVerifyPasswordRejectsMalformedStored(t *testing.T) {
	for _, stored := range [][]byte{nil, {}, make([]byte, saltSize), make([]byte, hashedPassSize-1), make([]byte, hashedPassSize+1)} {
		if VerifyPassword("anything", stored) {
			t.Errorf("malformed stored digest of %d bytes must not verify", len(stored))
		}
	}
}
