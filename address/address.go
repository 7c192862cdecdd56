// Package address derives human-shareable account addresses from
// post-quantum public keys.
//
// The account identifier is the Keccak-256 digest of the 64-byte public key.
// Addresses are SS58 strings: a one-byte network prefix, the 32-byte account
// identifier, and a two-byte BLAKE2b checksum over "SS58PRE" || prefix || id,
// all Base58-encoded with the Bitcoin alphabet.
package address

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"quantumharmony.io/vault/hashing"
)

const (
	// DefaultPrefix is the generic Substrate-family network prefix.
	DefaultPrefix byte = 42

	// PublicKeySize is the raw public key length in bytes.
	PublicKeySize = 64

	// AccountIDSize is the account identifier length in bytes.
	AccountIDSize = 32

	checksumSize = 2
	payloadSize  = 1 + AccountIDSize + checksumSize
)

// checksumPrefix is the SS58 checksum domain separator.
var checksumPrefix = []byte("SS58PRE")

var (
	ErrInvalidPublicKey = errors.New("address: invalid public key length")
	ErrInvalidAddress   = errors.New("address: invalid address")
	ErrInvalidChecksum  = errors.New("address: invalid checksum")
)

// AccountID derives the 32-byte account identifier from a public key.
func AccountID(publicKey []byte) ([AccountIDSize]byte, error) {
	if len(publicKey) != PublicKeySize {
		return [AccountIDSize]byte{}, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidPublicKey, PublicKeySize, len(publicKey))
	}
	return hashing.Keccak256(publicKey), nil
}

// Encode returns the SS58 address string for an account identifier.
//
// Encoding is a pure function: the same identifier and prefix always yield
// the same string. Leading zero bytes map to leading '1' characters per the
// Base58Check convention.
func Encode(accountID [AccountIDSize]byte, prefix byte) string {
	data := make([]byte, 0, payloadSize)
	data = append(data, prefix)
	data = append(data, accountID[:]...)

	payload := append([]byte(nil), data...)
	payload = append(payload, checksum(data)...)
	return base58.Encode(payload)
}

// FromPublicKey derives the SS58 address directly from a public key.
func FromPublicKey(publicKey []byte, prefix byte) (string, error) {
	id, err := AccountID(publicKey)
	if err != nil {
		return "", err
	}
	return Encode(id, prefix), nil
}

// Decode parses an SS58 address, verifies its checksum, and returns the
// account identifier and network prefix.
func Decode(s string) ([AccountIDSize]byte, byte, error) {
	var id [AccountIDSize]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return id, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != payloadSize {
		return id, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, payloadSize, len(raw))
	}

	data := raw[:1+AccountIDSize]
	if !hashing.ConstantTimeEqual(raw[1+AccountIDSize:], checksum(data)) {
		return id, 0, ErrInvalidChecksum
	}

	copy(id[:], data[1:])
	return id, data[0], nil
}

// Verify reports whether s is a well-formed SS58 address for the given
// network prefix.
func Verify(s string, prefix byte) error {
	_, got, err := Decode(s)
	if err != nil {
		return err
	}
	if got != prefix {
		return fmt.Errorf("%w: network prefix 0x%02x, expected 0x%02x", ErrInvalidAddress, got, prefix)
	}
	return nil
}

func checksum(data []byte) []byte {
	in := make([]byte, 0, len(checksumPrefix)+len(data))
	in = append(in, checksumPrefix...)
	in = append(in, data...)
	sum := hashing.Blake2b512(in)
	return sum[:checksumSize]
}
