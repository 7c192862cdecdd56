package keystore

import "errors"

// Error contract, stable for programmatic handling.
//
// Authentication failures are deliberately uniform: a wrong password and a
// tampered ciphertext both surface as ErrInvalidPassword so the error channel
// cannot be used as a corruption oracle. Structural problems (wrong lengths,
// malformed documents) are a distinct class that is diagnosable without a
// password.
var (
	// ErrInvalidPassword is returned for any authentication failure during
	// unlock. Callers must not be able to distinguish a wrong password from
	// corrupted cipher material.
	ErrInvalidPassword = errors.New("keystore: invalid password")

	// ErrInvalidFormat is returned when a record or decrypted payload is
	// structurally malformed.
	ErrInvalidFormat = errors.New("keystore: invalid keystore format")

	// ErrUnsupportedDerivation is returned by any attempt to synthesize a
	// keypair from local entropy, a seed, or a password.
	ErrUnsupportedDerivation = errors.New("keystore: keypair derivation from seeds or passwords is not supported for this scheme; request one from a key-generation service or import a key file")

	// ErrFallbackNotAllowed is returned when fallback (non-AEAD, weakened
	// KDF) crypto is requested without explicit opt-in.
	ErrFallbackNotAllowed = errors.New("keystore: fallback crypto requires explicit opt-in")
)
