package vault

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/keystore"
	"quantumharmony.io/vault/store"
)

func testKeyPair(t *testing.T, fill byte) keystore.KeyPair {
	t.Helper()
	kp, err := keystore.NewKeyPair(bytes.Repeat([]byte{fill}, keystore.SecretKeySize))
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	return kp
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StorePath = filepath.Join(t.TempDir(), "keystores.json")
	cfg.Iterations = 16 // keep the pbkdf2 work factor out of test runtime
	return cfg
}

func openTestVault(t *testing.T, cfg Config) *Vault {
	t.Helper()
	v, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	bad := cfg
	bad.Backend = "redis"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown backend accepted")
	}
	bad = cfg
	bad.StorePath = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("empty store path accepted")
	}
	bad = cfg
	bad.Iterations = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero iterations accepted")
	}
}

func TestVault_CreateFromKeyPairAndUnlock(t *testing.T) {
	v := openTestVault(t, testConfig(t))

	kp := testKeyPair(t, 0x42)
	rec, err := v.CreateFromKeyPair(kp, "open sesame", "validator-1")
	if err != nil {
		t.Fatalf("CreateFromKeyPair failed: %v", err)
	}
	if rec.Meta.Name != "validator-1" {
		t.Fatalf("record name = %q", rec.Meta.Name)
	}

	got, err := v.Unlock(rec.ID, "open sesame")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	defer got.Zero()
	if !bytes.Equal(got.SecretKey, kp.SecretKey) {
		t.Fatal("unlocked secret differs from original")
	}

	if _, err := v.Unlock(rec.ID, "wrong"); !errors.Is(err, keystore.ErrInvalidPassword) {
		t.Fatalf("wrong password: got %v, want ErrInvalidPassword", err)
	}
}

func TestVault_FirstRecordBecomesActive(t *testing.T) {
	v := openTestVault(t, testConfig(t))

	first, err := v.CreateFromKeyPair(testKeyPair(t, 0x01), "pw", "first")
	if err != nil {
		t.Fatalf("CreateFromKeyPair failed: %v", err)
	}
	if _, err := v.CreateFromKeyPair(testKeyPair(t, 0x02), "pw", "second"); err != nil {
		t.Fatalf("CreateFromKeyPair failed: %v", err)
	}

	active, err := v.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("active = %q, want the first record %q", active.ID, first.ID)
	}

	kp, err := v.UnlockActive("pw")
	if err != nil {
		t.Fatalf("UnlockActive failed: %v", err)
	}
	kp.Zero()
}

func TestVault_SelectAndDelete(t *testing.T) {
	v := openTestVault(t, testConfig(t))

	a, _ := v.CreateFromKeyPair(testKeyPair(t, 0x0A), "pw", "a")
	b, _ := v.CreateFromKeyPair(testKeyPair(t, 0x0B), "pw", "b")

	if err := v.Select(b.ID); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	active, _ := v.Active()
	if active.ID != b.ID {
		t.Fatalf("active = %q after Select(%q)", active.ID, b.ID)
	}

	if err := v.Delete(b.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	active, err := v.Active()
	if err != nil {
		t.Fatalf("Active after deleting active: %v", err)
	}
	if active.ID != a.ID {
		t.Fatalf("active pointer did not move to the remaining record")
	}

	if err := v.Delete("no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleting unknown id: got %v, want ErrNotFound", err)
	}
}

func TestVault_ExportImportRoundTrip(t *testing.T) {
	src := openTestVault(t, testConfig(t))
	rec, err := src.CreateFromKeyPair(testKeyPair(t, 0x5C), "travel pw", "portable")
	if err != nil {
		t.Fatalf("CreateFromKeyPair failed: %v", err)
	}
	doc, err := src.Export(rec.ID)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := openTestVault(t, testConfig(t))
	imported, err := dst.Import(doc)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.ID != rec.ID || imported.Address != rec.Address {
		t.Fatal("imported record does not match the exported one")
	}

	kp, err := dst.Unlock(rec.ID, "travel pw")
	if err != nil {
		t.Fatalf("Unlock after import failed: %v", err)
	}
	kp.Zero()
}

func TestVault_ImportRejectsMalformed(t *testing.T) {
	v := openTestVault(t, testConfig(t))

	if _, err := v.Import([]byte("not json")); !errors.Is(err, keystore.ErrInvalidFormat) {
		t.Fatalf("non-json import: got %v, want ErrInvalidFormat", err)
	}

	rec, _ := v.CreateFromKeyPair(testKeyPair(t, 0x11), "pw", "")
	doc, _ := v.Export(rec.ID)
	tampered := bytes.Replace(doc, []byte(rec.Address), []byte("5NotARealAddress00000000000000000000000000000000"), 1)
	if _, err := v.Import(tampered); !errors.Is(err, keystore.ErrInvalidFormat) {
		t.Fatalf("bad-address import: got %v, want ErrInvalidFormat", err)
	}
}

func TestVault_CreateViaGenerationService(t *testing.T) {
	secret := bytes.Repeat([]byte{0xE7}, keystore.SecretKeySize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":        true,
			"secret_key_hex": hex.EncodeToString(secret),
		})
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Endpoints = []string{srv.URL}
	v := openTestVault(t, cfg)

	rec, err := v.Create(context.Background(), "pw", "generated")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	kp, err := v.Unlock(rec.ID, "pw")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	defer kp.Zero()
	if !bytes.Equal(kp.SecretKey, secret) {
		t.Fatal("sealed secret differs from the generated one")
	}
}

func TestVault_FallbackCryptoOptIn(t *testing.T) {
	cfg := testConfig(t)
	cfg.UseFallbackCrypto = true
	v := openTestVault(t, cfg)

	rec, err := v.CreateFromKeyPair(testKeyPair(t, 0x33), "pw", "")
	if err != nil {
		t.Fatalf("CreateFromKeyPair with fallback failed: %v", err)
	}
	if rec.Crypto.KDF != keystore.KDFNameFallback || rec.Crypto.Cipher != keystore.CipherNameXor {
		t.Fatalf("fallback record not marked: kdf=%q cipher=%q", rec.Crypto.KDF, rec.Crypto.Cipher)
	}

	// A primary-path vault must still unlock the fallback record.
	plain := openTestVault(t, Config{
		StorePath:  cfg.StorePath + "-other",
		Backend:    BackendFile,
		Iterations: 16,
		Logger:     zerolog.Nop(),
	})
	if _, err := plain.Import(mustMarshal(t, rec)); err != nil {
		t.Fatalf("Import fallback record: %v", err)
	}
	kp, err := plain.Unlock(rec.ID, "pw")
	if err != nil {
		t.Fatalf("Unlock fallback record: %v", err)
	}
	kp.Zero()
}

func TestVault_BoltBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = BackendBolt
	cfg.StorePath = filepath.Join(t.TempDir(), "keystores.db")
	v := openTestVault(t, cfg)

	rec, err := v.CreateFromKeyPair(testKeyPair(t, 0x7F), "pw", "bolt")
	if err != nil {
		t.Fatalf("CreateFromKeyPair failed: %v", err)
	}
	recs, err := v.List()
	if err != nil || len(recs) != 1 || recs[0].ID != rec.ID {
		t.Fatalf("List: %v %+v", err, recs)
	}
}

func mustMarshal(t *testing.T, rec keystore.Record) []byte {
	t.Helper()
	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}
