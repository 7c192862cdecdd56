package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/address"
	"quantumharmony.io/vault/keystore"
)

// Backend names for Config.Backend.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Config carries everything a Vault needs. There are no package-level
// settings: construct a Config, validate it, and inject it.
type Config struct {
	// StorePath locates the persisted collection (a JSON document for the
	// file backend, a database file for the bolt backend).
	StorePath string

	// Backend selects the store implementation: "file" or "bolt".
	Backend string

	// NetworkPrefix is the SS58 network prefix for derived addresses.
	NetworkPrefix byte

	// Iterations is the KDF round count for new records.
	Iterations int

	// UseFallbackCrypto opts in to creating records with the degraded
	// KDF/cipher pair. This exists for compatibility with legacy
	// non-AEAD environments and weakens protection; leave it off.
	UseFallbackCrypto bool

	// Endpoints are the key-generation service candidates.
	// Empty means keygen.DefaultEndpoints.
	Endpoints []string

	// GenerateTimeout bounds each generation endpoint attempt.
	GenerateTimeout time.Duration

	// Logger receives structured diagnostics. The zero value is silent.
	Logger zerolog.Logger
}

// DefaultConfig returns the standard single-operator configuration.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		StorePath:     filepath.Join(home, ".quantumharmony", "keystores.json"),
		Backend:       BackendFile,
		NetworkPrefix: address.DefaultPrefix,
		Iterations:    keystore.DefaultIterations,
		Logger:        zerolog.Nop(),
	}
}

// Validate checks the configuration before any resource is opened.
func (c Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("vault: store path is required")
	}
	switch c.Backend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("vault: unknown store backend %q", c.Backend)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("vault: kdf iterations must be positive, got %d", c.Iterations)
	}
	return nil
}
