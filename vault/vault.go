// Package vault ties the credential vault together: remote key generation,
// password-sealed keystore records, address derivation, and the persisted
// record collection.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/address"
	"quantumharmony.io/vault/keygen"
	"quantumharmony.io/vault/keystore"
	"quantumharmony.io/vault/store"
)

// Vault is a single-operator credential vault over one persisted record
// collection.
//
// A Vault serializes its own mutations; two Vault instances (or processes)
// pointed at the same store rely on the store backend's locking.
type Vault struct {
	cfg   Config
	store store.Store
	gen   *keygen.Client
	log   zerolog.Logger

	mu sync.Mutex
}

// Open validates cfg, opens the record store, and returns a ready Vault.
func Open(cfg Config) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.Backend {
	case BackendBolt:
		s, err = store.OpenBoltStore(cfg.StorePath, cfg.Logger)
	default:
		s, err = store.NewFileStore(cfg.StorePath, cfg.Logger)
	}
	if err != nil {
		return nil, err
	}

	if cfg.UseFallbackCrypto {
		cfg.Logger.Warn().Msg("fallback crypto enabled: new records will use the weakened kdf and cipher")
	}

	v := &Vault{
		cfg:   cfg,
		store: s,
		gen: keygen.New(keygen.Config{
			Endpoints: cfg.Endpoints,
			Timeout:   cfg.GenerateTimeout,
			Logger:    cfg.Logger,
		}),
		log: cfg.Logger,
	}
	return v, nil
}

// Close releases the underlying store.
func (v *Vault) Close() error { return v.store.Close() }

func (v *Vault) options() keystore.Options {
	opts := keystore.Options{Iterations: v.cfg.Iterations}.WithNetworkPrefix(v.cfg.NetworkPrefix)
	if v.cfg.UseFallbackCrypto {
		opts.KDF = keystore.Sha256Chain{}
		opts.Cipher = keystore.XorSha256{}
		opts.AllowFallback = true
	}
	return opts
}

// Create requests a fresh keypair from the generation service, seals it
// under password, persists the record, and returns it. The raw key
// material is wiped before returning.
func (v *Vault) Create(ctx context.Context, password, name string) (keystore.Record, error) {
	kp, err := v.gen.Generate(ctx, "")
	if err != nil {
		return keystore.Record{}, err
	}
	defer kp.Zero()
	return v.CreateFromKeyPair(kp, password, name)
}

// CreateFromKeyPair seals an externally supplied keypair and persists the
// record. The caller retains ownership of kp and should wipe it.
func (v *Vault) CreateFromKeyPair(kp keystore.KeyPair, password, name string) (keystore.Record, error) {
	rec, err := keystore.Create(kp, password, name, v.options())
	if err != nil {
		return keystore.Record{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Save(rec); err != nil {
		return keystore.Record{}, err
	}
	v.log.Info().Str("id", rec.ID).Str("address", rec.Address).Msg("keystore created")
	return rec, nil
}

// Unlock decrypts the record with the given id.
func (v *Vault) Unlock(id, password string) (keystore.KeyPair, error) {
	rec, err := v.store.Get(id)
	if err != nil {
		return keystore.KeyPair{}, err
	}
	return keystore.Unlock(rec, password)
}

// UnlockActive decrypts the active record.
func (v *Vault) UnlockActive(password string) (keystore.KeyPair, error) {
	rec, err := v.store.Active()
	if err != nil {
		return keystore.KeyPair{}, err
	}
	return keystore.Unlock(rec, password)
}

// Import parses and validates an exported keystore document and persists
// it. Validation is structural only; no password is needed.
func (v *Vault) Import(data []byte) (keystore.Record, error) {
	rec, err := keystore.ParseRecord(data)
	if err != nil {
		return keystore.Record{}, err
	}
	if _, _, err := address.Decode(rec.Address); err != nil {
		return keystore.Record{}, fmt.Errorf("%w: %v", keystore.ErrInvalidFormat, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Save(rec); err != nil {
		return keystore.Record{}, err
	}
	v.log.Info().Str("id", rec.ID).Str("address", rec.Address).Msg("keystore imported")
	return rec, nil
}

// Export renders the record with the given id as its canonical JSON
// document.
func (v *Vault) Export(id string) ([]byte, error) {
	rec, err := v.store.Get(id)
	if err != nil {
		return nil, err
	}
	return rec.Marshal()
}

// Get returns the record with the given id.
func (v *Vault) Get(id string) (keystore.Record, error) { return v.store.Get(id) }

// List returns all records in insertion order.
func (v *Vault) List() ([]keystore.Record, error) { return v.store.List() }

// Active returns the active record.
func (v *Vault) Active() (keystore.Record, error) { return v.store.Active() }

// Select makes the record with the given id the active signing identity.
func (v *Vault) Select(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.SetActive(id)
}

// Delete removes a record. Deleting the active record moves the active
// pointer per the store contract.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Delete(id)
}

// Ping probes a key-generation endpoint.
func (v *Vault) Ping(ctx context.Context, endpoint string) error {
	return v.gen.Ping(ctx, endpoint)
}
