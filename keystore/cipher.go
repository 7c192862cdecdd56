package keystore

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"fmt"

	"quantumharmony.io/vault/hashing"
)

const (
	// SaltSize is the KDF salt length in bytes.
	SaltSize = 32

	// IVSize is the cipher IV length in bytes.
	IVSize = 12

	// CipherNameGCM and CipherNameXor are the cipher identifiers stored in
	// records.
	CipherNameGCM = "aes-256-gcm"
	CipherNameXor = "xor-sha256"
)

// Cipher seals and opens secret key bytes under a derived symmetric key.
//
// Encrypt returns the ciphertext and, for non-AEAD implementations, a
// separate integrity MAC (empty for AEAD ciphers, whose tag is embedded in
// the ciphertext). Decrypt reports any authentication failure as the uniform
// ErrInvalidPassword.
type Cipher interface {
	Name() string
	Encrypt(key, iv, plaintext []byte) (ciphertext, mac []byte, err error)
	Decrypt(key, iv, ciphertext, mac []byte) ([]byte, error)
}

// Aes256Gcm is the primary cipher: AES-256-GCM with a 12-byte IV and the
// authentication tag embedded in the ciphertext.
type Aes256Gcm struct{}

func (Aes256Gcm) Name() string { return CipherNameGCM }

func (Aes256Gcm) Encrypt(key, iv, plaintext []byte) ([]byte, []byte, error) {
	aead, err := newGCM(key, iv)
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil, nil
}

func (Aes256Gcm) Decrypt(key, iv, ciphertext, mac []byte) ([]byte, error) {
	aead, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		// Tag mismatch: wrong password and tampered ciphertext are
		// indistinguishable here, by contract.
		return nil, ErrInvalidPassword
	}
	return plaintext, nil
}

func newGCM(key, iv []byte) (gocipher.AEAD, error) {
	if len(key) != derivedKeySize {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes, got %d", ErrInvalidFormat, derivedKeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidFormat, IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: aes init: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: gcm init: %w", err)
	}
	return aead, nil
}

// XorSha256 is the degraded fallback cipher for environments without an
// AEAD provider: repeating-key XOR with an explicit
// mac = SHA256(ciphertext || key) stored alongside.
//
// Weaker than the primary path; creation requires explicit opt-in.
type XorSha256 struct{}

func (XorSha256) Name() string { return CipherNameXor }

func (XorSha256) Encrypt(key, iv, plaintext []byte) ([]byte, []byte, error) {
	if len(key) != derivedKeySize {
		return nil, nil, fmt.Errorf("%w: cipher key must be %d bytes, got %d", ErrInvalidFormat, derivedKeySize, len(key))
	}
	_ = iv // kept for interface symmetry; the keystream depends only on the key
	ciphertext := xorKeystream(key, plaintext)
	mac := hashing.SHA256(append(append([]byte(nil), ciphertext...), key...))
	return ciphertext, mac[:], nil
}

func (XorSha256) Decrypt(key, iv, ciphertext, mac []byte) ([]byte, error) {
	if len(key) != derivedKeySize {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes, got %d", ErrInvalidFormat, derivedKeySize, len(key))
	}
	_ = iv
	want := hashing.SHA256(append(append([]byte(nil), ciphertext...), key...))
	if !hashing.ConstantTimeEqual(mac, want[:]) {
		return nil, ErrInvalidPassword
	}
	return xorKeystream(key, ciphertext), nil
}

func xorKeystream(key, in []byte) []byte {
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ key[i%len(key)]
	}
	return out
}

// cipherByName resolves the cipher declared inside a stored record.
func cipherByName(name string) (Cipher, error) {
	switch name {
	case CipherNameGCM:
		return Aes256Gcm{}, nil
	case CipherNameXor:
		return XorSha256{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrInvalidFormat, name)
	}
}
