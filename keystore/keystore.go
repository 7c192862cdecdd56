// Package keystore seals post-quantum secret keys behind a password and
// opens them again: password-based key derivation, authenticated
// encryption, and the v1 keystore record format.
//
// The primary path is PBKDF2 + AES-256-GCM. Degraded fallback
// implementations exist for both concerns, are clearly marked inside the
// records they produce, and require explicit opt-in to create new records.
package keystore

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"quantumharmony.io/vault/address"
	"quantumharmony.io/vault/hashing"
)

// Options selects the crypto implementations and parameters used when
// creating records. The zero value means the primary path with defaults.
type Options struct {
	// KDF and Cipher default to Pbkdf2 and Aes256Gcm.
	KDF    KDF
	Cipher Cipher

	// Iterations defaults to DefaultIterations.
	Iterations int

	// NetworkPrefix defaults to address.DefaultPrefix.
	NetworkPrefix byte

	// AllowFallback must be set to create records with the degraded KDF or
	// cipher. Unlocking existing fallback records is always permitted.
	AllowFallback bool

	// Rand is the entropy source for salts and IVs. Defaults to crypto/rand.
	Rand io.Reader

	prefixSet bool
}

// WithNetworkPrefix sets an explicit network prefix, including prefix 0.
func (o Options) WithNetworkPrefix(prefix byte) Options {
	o.NetworkPrefix = prefix
	o.prefixSet = true
	return o
}

func (o Options) withDefaults() Options {
	if o.KDF == nil {
		o.KDF = Pbkdf2{}
	}
	if o.Cipher == nil {
		o.Cipher = Aes256Gcm{}
	}
	if o.Iterations < 1 {
		o.Iterations = DefaultIterations
	}
	if o.NetworkPrefix == 0 && !o.prefixSet {
		o.NetworkPrefix = address.DefaultPrefix
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	return o
}

func (o Options) usesFallback() bool {
	return o.KDF.Name() == KDFNameFallback || o.Cipher.Name() == CipherNameXor
}

// Create seals a keypair under a password and returns the keystore record.
//
// A fresh salt and IV are drawn for every record. Before returning, the
// record is unlocked again with the same password and the recovered secret
// compared to the original; if that round trip fails, no record is returned.
// Create never persists anything itself.
func Create(kp KeyPair, password, name string, opts Options) (Record, error) {
	opts = opts.withDefaults()
	if opts.usesFallback() && !opts.AllowFallback {
		return Record{}, ErrFallbackNotAllowed
	}
	if len(kp.SecretKey) != SecretKeySize {
		return Record{}, fmt.Errorf("%w: secret key must be %d bytes, got %d",
			ErrInvalidFormat, SecretKeySize, len(kp.SecretKey))
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(opts.Rand, salt); err != nil {
		return Record{}, fmt.Errorf("keystore: generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(opts.Rand, iv); err != nil {
		return Record{}, fmt.Errorf("keystore: generate iv: %w", err)
	}

	key := opts.KDF.Derive(password, salt, opts.Iterations)
	ciphertext, mac, err := opts.Cipher.Encrypt(key, iv, kp.SecretKey)
	if err != nil {
		return Record{}, fmt.Errorf("keystore: encrypt: %w", err)
	}

	addr, err := address.FromPublicKey(kp.PublicKey, opts.NetworkPrefix)
	if err != nil {
		return Record{}, err
	}

	macField := ""
	if len(mac) > 0 {
		macField = encodeHex(mac)
	}
	rec := Record{
		Version:   FormatVersion,
		ID:        uuid.NewString(),
		Address:   addr,
		PublicKey: encodeHex(kp.PublicKey),
		Crypto: Crypto{
			Cipher:       opts.Cipher.Name(),
			Ciphertext:   encodeHex(ciphertext),
			CipherParams: CipherParams{IV: encodeHex(iv)},
			KDF:          opts.KDF.Name(),
			KDFParams: KDFParams{
				Iterations: opts.Iterations,
				Salt:       encodeHex(salt),
				Hash:       KDFHash,
			},
			MAC: macField,
		},
		Meta: Meta{
			Name:      name,
			Created:   time.Now().UTC().Format(time.RFC3339),
			Algorithm: Algorithm,
		},
	}

	// Round-trip self-verification: a record that cannot be unlocked with
	// the password that created it must never be handed out.
	recovered, err := Unlock(rec, password)
	if err != nil {
		return Record{}, fmt.Errorf("keystore: self-verification failed: %w", err)
	}
	defer recovered.Zero()
	if !hashing.ConstantTimeEqual(recovered.SecretKey, kp.SecretKey) {
		return Record{}, fmt.Errorf("keystore: self-verification failed: recovered key differs")
	}

	return rec, nil
}

// Unlock decrypts a record's secret key with the supplied password.
//
// Authentication failures surface uniformly as ErrInvalidPassword. A
// decrypted payload of the wrong length is ErrInvalidFormat: it indicates
// structural corruption, not a bad password.
func Unlock(rec Record, password string) (KeyPair, error) {
	if err := rec.validate(); err != nil {
		return KeyPair{}, err
	}

	salt, err := decodeHex(rec.Crypto.KDFParams.Salt)
	if err != nil {
		return KeyPair{}, err
	}
	ciphertext, err := decodeHex(rec.Crypto.Ciphertext)
	if err != nil {
		return KeyPair{}, err
	}
	var iv []byte
	if rec.Crypto.CipherParams.IV != "" {
		if iv, err = decodeHex(rec.Crypto.CipherParams.IV); err != nil {
			return KeyPair{}, err
		}
	}
	var mac []byte
	if rec.Crypto.MAC != "" {
		if mac, err = decodeHex(rec.Crypto.MAC); err != nil {
			return KeyPair{}, err
		}
	}

	kdf, err := kdfByName(rec.Crypto.KDF)
	if err != nil {
		return KeyPair{}, err
	}
	ciph, err := cipherByName(rec.Crypto.Cipher)
	if err != nil {
		return KeyPair{}, err
	}

	key := kdf.Derive(password, salt, rec.Crypto.KDFParams.Iterations)
	secret, err := ciph.Decrypt(key, iv, ciphertext, mac)
	if err != nil {
		return KeyPair{}, err
	}
	if len(secret) != SecretKeySize {
		return KeyPair{}, fmt.Errorf("%w: decrypted payload is %d bytes, expected %d",
			ErrInvalidFormat, len(secret), SecretKeySize)
	}
	return NewKeyPair(secret)
}
