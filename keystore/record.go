package keystore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// FormatVersion is the keystore file format version.
	FormatVersion = 1

	// Algorithm identifies the signature scheme the stored key belongs to.
	Algorithm = "sphincs-plus-256"

	// KDFHash names the hash backing both KDF paths.
	KDFHash = "sha-256"
)

// Record is the persisted, password-encrypted representation of a secret key
// plus its public metadata (v1 keystore file format).
//
// A record is immutable except for its cipher material, and cipher material
// is never rewritten in place: rotation produces a brand-new record with a
// fresh salt and IV. Address and public key are stored in the clear so they
// can be displayed without unlocking.
type Record struct {
	Version   int    `json:"version"`
	ID        string `json:"id"`
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Crypto    Crypto `json:"crypto"`
	Meta      Meta   `json:"meta"`
}

type Crypto struct {
	Cipher       string       `json:"cipher"`
	Ciphertext   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

type CipherParams struct {
	IV string `json:"iv"`
}

type KDFParams struct {
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Hash       string `json:"hash"`
}

type Meta struct {
	Name      string `json:"name"`
	Created   string `json:"created"`
	Algorithm string `json:"algorithm"`
}

// Marshal renders the record as its canonical JSON document, suitable for
// export and re-import.
func (r Record) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("keystore: marshal record: %w", err)
	}
	return append(b, '\n'), nil
}

// ParseRecord parses and validates an exported keystore document.
//
// Validation is purely structural and happens before any decryption attempt:
// version, crypto, and address must be present and well formed. Anything
// else is rejected as ErrInvalidFormat.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (r Record) validate() error {
	if r.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, r.Version)
	}
	if r.Address == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidFormat)
	}
	c := r.Crypto
	if c.Cipher == "" || c.Ciphertext == "" || c.KDF == "" || c.KDFParams.Salt == "" {
		return fmt.Errorf("%w: missing crypto fields", ErrInvalidFormat)
	}
	if c.Cipher == CipherNameGCM && c.CipherParams.IV == "" {
		return fmt.Errorf("%w: missing cipherparams.iv", ErrInvalidFormat)
	}
	return nil
}

// encodeHex renders bytes as a 0x-prefixed lowercase hex string.
func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// decodeHex parses a hex string with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return b, nil
}
