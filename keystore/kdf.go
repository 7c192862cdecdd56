package keystore

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the default PBKDF2 round count.
	DefaultIterations = 100000

	// maxFallbackIterations caps the chained-SHA-256 fallback rounds.
	maxFallbackIterations = 10000

	// derivedKeySize is the symmetric key length in bytes.
	derivedKeySize = 32

	// KDFNamePbkdf2 and KDFNameFallback are the kdf identifiers stored in
	// records. Auditors use the fallback marker to find records protected
	// by the weaker path.
	KDFNamePbkdf2   = "pbkdf2"
	KDFNameFallback = "pbkdf2-fallback"
)

// KDF derives a 32-byte symmetric key from a password. Implementations are
// deterministic for identical (password, salt, iterations) inputs.
//
// The concrete KDF is selected once at construction and injected; nothing
// branches on runtime capabilities per call.
type KDF interface {
	Name() string
	Derive(password string, salt []byte, iterations int) []byte
}

// Pbkdf2 is the primary KDF: PBKDF2 with HMAC-SHA256.
type Pbkdf2 struct{}

func (Pbkdf2) Name() string { return KDFNamePbkdf2 }

func (Pbkdf2) Derive(password string, salt []byte, iterations int) []byte {
	if iterations < 1 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(password), salt, iterations, derivedKeySize, sha256.New)
}

// Sha256Chain is the degraded fallback KDF: iterative SHA-256 chaining of
// password || salt, capped at 10000 rounds.
//
// This path exists only for environments without a PBKDF2 provider and is
// cryptographically weaker than the primary path. Records it protects carry
// the "pbkdf2-fallback" marker, and creation requires explicit opt-in.
type Sha256Chain struct{}

func (Sha256Chain) Name() string { return KDFNameFallback }

func (Sha256Chain) Derive(password string, salt []byte, iterations int) []byte {
	rounds := iterations
	if rounds > maxFallbackIterations {
		rounds = maxFallbackIterations
	}
	if rounds < 1 {
		rounds = 1
	}

	sum := sha256.Sum256(append([]byte(password), salt...))
	for i := 1; i < rounds; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return sum[:derivedKeySize]
}

// kdfByName resolves the KDF declared inside a stored record. Unlock must be
// able to open any well-formed record regardless of which KDF the current
// configuration would use for new records.
func kdfByName(name string) (KDF, error) {
	switch name {
	case KDFNamePbkdf2:
		return Pbkdf2{}, nil
	case KDFNameFallback:
		return Sha256Chain{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrInvalidFormat, name)
	}
}
