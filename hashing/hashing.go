// Package hashing provides the digest primitives the vault builds on:
// BLAKE2b (variable output length, optionally keyed), pre-NIST Keccak-256,
// and SHA-256. These are checksum and identifier functions, not a
// general-purpose hashing utility surface.
package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

const (
	// MaxDigestSize is the largest BLAKE2b output length in bytes.
	MaxDigestSize = blake2b.Size
	// MaxKeySize is the largest BLAKE2b key length in bytes.
	MaxKeySize = 64
)

// Blake2b computes a BLAKE2b digest of data with the requested output size
// in bytes (1..64) and an optional key (nil or up to 64 bytes).
//
// Out-of-range parameters are rejected, never silently truncated: the digest
// feeds address checksums that other systems must recompute bit-for-bit.
func Blake2b(data, key []byte, size int) ([]byte, error) {
	if size < 1 || size > MaxDigestSize {
		return nil, fmt.Errorf("hashing: blake2b output size must be 1..%d bytes, got %d", MaxDigestSize, size)
	}
	if len(key) > MaxKeySize {
		return nil, fmt.Errorf("hashing: blake2b key must be at most %d bytes, got %d", MaxKeySize, len(key))
	}
	h, err := blake2b.New(size, key)
	if err != nil {
		return nil, fmt.Errorf("hashing: blake2b init: %w", err)
	}
	_, _ = h.Write(data)
	return h.Sum(nil), nil
}

// Blake2b512 computes an unkeyed 64-byte BLAKE2b digest.
func Blake2b512(data []byte) [64]byte {
	return blake2b.Sum512(data)
}

// Keccak256 computes the pre-standardization Keccak-256 digest.
//
// This is deliberately not SHA3-256: account identifiers use the legacy
// Keccak padding.
func Keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SHA256 computes a SHA-256 digest.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqual compares two byte slices in constant time.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
